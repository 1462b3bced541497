package policy

import (
	"regexp"
	"strings"
)

type Risk string

const (
	RiskLow     Risk = "low"
	RiskMedium  Risk = "medium"
	RiskHigh    Risk = "high"
	RiskBlocked Risk = "blocked"
)

type ToolDecision struct {
	Risk    Risk
	Blocked bool
	Reason  string
}

var (
	blockedArgPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(api[_ -]?key|access[_ -]?token|password|secret)\s*[:=]\s*\S{8,}`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`(?i)\b(exfiltrate|dump credentials|leak secrets?)\b`),
	}
	// Tools that act on the outside world on the user's behalf.
	highRiskTools = map[string]bool{
		"sendEmail":     true,
		"makePhoneCall": true,
	}
	mediumRiskTools = map[string]bool{
		"createDraft":     true,
		"bookAppointment": true,
	}
)

// DecideToolCall classifies a tool call. argsText is the call's arguments
// rendered as text. Calls that would carry credentials out are blocked.
func DecideToolCall(name, argsText string) ToolDecision {
	name = strings.TrimSpace(name)
	for _, re := range blockedArgPatterns {
		if re.MatchString(argsText) {
			return ToolDecision{
				Risk:    RiskBlocked,
				Blocked: true,
				Reason:  "Request blocked: the arguments appear to contain credentials or secret material. Tell the user this cannot be sent.",
			}
		}
	}
	switch {
	case highRiskTools[name]:
		return ToolDecision{Risk: RiskHigh}
	case mediumRiskTools[name]:
		return ToolDecision{Risk: RiskMedium}
	default:
		return ToolDecision{Risk: RiskLow}
	}
}
