package tools

import "google.golang.org/genai"

// GenAIDeclarations converts registry declarations into Gemini function
// declarations. Parameters are flat objects of strings and numbers.
func GenAIDeclarations(decls []Declaration) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.Params)),
		}
		for _, p := range d.Params {
			typ := genai.TypeString
			if p.Type == ParamNumber {
				typ = genai.TypeNumber
			}
			params.Properties[p.Name] = &genai.Schema{Type: typ, Description: p.Description}
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		})
	}
	return out
}

func CallFromGenAI(fc *genai.FunctionCall) Call {
	return Call{ID: fc.ID, Name: fc.Name, Args: Args(fc.Args)}
}
