package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antoniostano/mrsmart/internal/phone"
	"github.com/antoniostano/mrsmart/internal/workspace"
)

const phoneConfigMessage = "Configuration Error: The user has not set up the 'From Number' or Retell credentials in settings. Please instruct the user to configure the 'Phone Agent' settings in the app menu."

// Caller places outbound calls. Implemented by *phone.Client.
type Caller interface {
	CreateCall(ctx context.Context, settings phone.Settings, req phone.CallRequest) (string, error)
}

type BuiltinDeps struct {
	Workspace     *workspace.Store
	Caller        Caller
	PhoneSettings *phone.SettingsStore
}

// RegisterBuiltins installs the executive-assistant capabilities.
func RegisterBuiltins(r *Registry, deps BuiltinDeps) error {
	if deps.Workspace == nil {
		return errors.New("workspace store is required")
	}
	caps := []Capability{
		listEmails(deps.Workspace),
		sendEmail(deps.Workspace),
		createDraft(deps.Workspace),
		getCalendarEvents(deps.Workspace),
		bookAppointment(deps.Workspace),
		makePhoneCall(deps.Caller, deps.PhoneSettings),
	}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func withRequired(d Declaration) func(Args) error {
	return func(args Args) error { return requireArgs(d, args) }
}

func listEmails(ws *workspace.Store) Capability {
	decl := Declaration{
		Name:        "listEmails",
		Description: "List recent emails from the user's inbox.",
	}
	return Capability{
		Declaration: decl,
		Handler: func(ctx context.Context, args Args) (string, error) {
			emails := ws.Emails()
			if len(emails) > 3 {
				emails = emails[:3]
			}
			if len(emails) == 0 {
				return "Found 0 recent emails.", nil
			}
			return fmt.Sprintf("Found %d recent emails. Top one from %s: %s", len(emails), emails[0].From, emails[0].Subject), nil
		},
	}
}

func emailParams() []Param {
	return []Param{
		{Name: "to", Type: ParamString, Required: true},
		{Name: "subject", Type: ParamString, Required: true},
		{Name: "body", Type: ParamString, Required: true},
	}
}

func sendEmail(ws *workspace.Store) Capability {
	decl := Declaration{
		Name:        "sendEmail",
		Description: "Send an email to a recipient.",
		Params:      emailParams(),
	}
	return Capability{
		Declaration: decl,
		Validate:    withRequired(decl),
		Handler: func(ctx context.Context, args Args) (string, error) {
			ws.SendEmail(args.String("to"), args.String("subject"), args.String("body"))
			return "Email sent successfully.", nil
		},
	}
}

func createDraft(ws *workspace.Store) Capability {
	decl := Declaration{
		Name:        "createDraft",
		Description: "Create an email draft.",
		Params:      emailParams(),
	}
	return Capability{
		Declaration: decl,
		Validate:    withRequired(decl),
		Handler: func(ctx context.Context, args Args) (string, error) {
			ws.AddDraft(args.String("to"), args.String("subject"), args.String("body"))
			return "Draft created.", nil
		},
	}
}

func getCalendarEvents(ws *workspace.Store) Capability {
	decl := Declaration{
		Name:        "getCalendarEvents",
		Description: "Get calendar events for a specific date or range.",
		Params: []Param{
			{Name: "dateInfo", Type: ParamString, Description: `Natural language date description (e.g., "today", "next week")`, Required: true},
		},
	}
	return Capability{
		Declaration: decl,
		Handler: func(ctx context.Context, args Args) (string, error) {
			return fmt.Sprintf("You have %d events scheduled.", len(ws.Events())), nil
		},
	}
}

func bookAppointment(ws *workspace.Store) Capability {
	decl := Declaration{
		Name:        "bookAppointment",
		Description: "Book a new appointment or event on the calendar.",
		Params: []Param{
			{Name: "title", Type: ParamString, Required: true},
			{Name: "time", Type: ParamString, Description: "Time of the event", Required: true},
			{Name: "durationMinutes", Type: ParamNumber},
		},
	}
	return Capability{
		Declaration: decl,
		Validate:    withRequired(decl),
		Handler: func(ctx context.Context, args Args) (string, error) {
			minutes := args.Number("durationMinutes", 60)
			if minutes <= 0 {
				minutes = 60
			}
			ws.AddEvent(args.String("title"), args.String("time"), time.Duration(minutes*float64(time.Minute)))
			return "Appointment booked.", nil
		},
	}
}

func makePhoneCall(caller Caller, settings *phone.SettingsStore) Capability {
	decl := Declaration{
		Name:        "makePhoneCall",
		Description: `Place a phone call using an external AI agent (Retell AI). You MUST ask the user for the phone number if it is not provided. The phoneNumber parameter MUST be a valid E.164 format string (e.g., +1234567890). Do NOT attempt to use a name (like "Alex") as a phone number.`,
		Params: []Param{
			{Name: "phoneNumber", Type: ParamString, Description: "The phone number to call in E.164 format (e.g. +15551234567). REQUIRED.", Required: true},
			{Name: "context", Type: ParamString, Description: "Detailed instructions for the AI agent making the call about what to address/say.", Required: true},
			{Name: "companyName", Type: ParamString, Description: "Name of the company being called, if applicable."},
			{Name: "emailAddress", Type: ParamString, Description: "Relevant email address for the call context, if any."},
		},
	}
	return Capability{
		Declaration: decl,
		Validate: func(args Args) error {
			_, err := ValidatePhoneNumber(args.String("phoneNumber"))
			return err
		},
		Handler: func(ctx context.Context, args Args) (string, error) {
			number, err := ValidatePhoneNumber(args.String("phoneNumber"))
			if err != nil {
				return "", err
			}
			var current phone.Settings
			if settings != nil {
				current = settings.Get()
			}
			if caller == nil || !current.Configured() {
				return "", &ValidationError{Tool: "makePhoneCall", Field: "settings", Message: phoneConfigMessage}
			}
			callID, err := caller.CreateCall(ctx, current, phone.CallRequest{
				ToNumber:     number,
				Context:      args.String("context"),
				CompanyName:  args.String("companyName"),
				EmailAddress: args.String("emailAddress"),
			})
			if err != nil {
				if errors.Is(err, phone.ErrNotConfigured) {
					return "", &ValidationError{Tool: "makePhoneCall", Field: "settings", Message: phoneConfigMessage}
				}
				return "", err
			}
			return "Call agent deployed. ID: " + callID, nil
		},
	}
}
