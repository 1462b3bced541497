package tools

import (
	"testing"

	"google.golang.org/genai"
)

func TestGenAIDeclarationsSchema(t *testing.T) {
	decls := GenAIDeclarations([]Declaration{{
		Name: "sendEmail",
		Params: []Param{
			{Name: "subject", Type: ParamString, Required: true},
			{Name: "limit", Type: ParamNumber},
		},
	}})
	if len(decls) != 1 || decls[0].Name != "sendEmail" {
		t.Fatalf("decls = %+v", decls)
	}
	params := decls[0].Parameters
	if params.Type != genai.TypeObject {
		t.Fatalf("parameters type = %v, want object", params.Type)
	}
	if params.Properties["limit"].Type != genai.TypeNumber || params.Properties["subject"].Type != genai.TypeString {
		t.Fatalf("properties = %+v", params.Properties)
	}
	if len(params.Required) != 1 || params.Required[0] != "subject" {
		t.Fatalf("required = %v", params.Required)
	}
}

func TestCallFromGenAI(t *testing.T) {
	got := CallFromGenAI(&genai.FunctionCall{ID: "c1", Name: "listEmails", Args: map[string]any{"limit": 2.0}})
	if got.ID != "c1" || got.Name != "listEmails" || got.Args.Number("limit", 0) != 2 {
		t.Fatalf("CallFromGenAI() = %+v", got)
	}
}
