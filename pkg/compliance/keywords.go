package compliance

import "strings"

// Action is what an inbound keyword triggers.
type Action string

// Inbound actions.
const (
	ActionStop      Action = "stop"
	ActionHelp      Action = "help"
	ActionIgnore    Action = "ignore"
	ActionDuplicate Action = "duplicate"
)

var stopWords = map[string]bool{
	"STOP":        true,
	"STOPALL":     true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
}

var helpWords = map[string]bool{
	"HELP": true,
	"INFO": true,
}

// NormalizeKeyword trims and upper-cases the first word of an inbound body.
func NormalizeKeyword(body string) string {
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(strings.Trim(fields[0], ".!?,;:"))
}

// Classify maps a normalized keyword to its action.
func Classify(keyword string) Action {
	switch {
	case stopWords[keyword]:
		return ActionStop
	case helpWords[keyword]:
		return ActionHelp
	default:
		return ActionIgnore
	}
}
