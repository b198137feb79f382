package agent

import (
	"encoding/json"
	"strings"
)

// ActionComplete is the action name that ends work on the current task.
const ActionComplete = "task_complete"

// DecisionKind tags the variant held by a Decision.
type DecisionKind int

const (
	// DecisionMalformed means the response could not be understood.
	DecisionMalformed DecisionKind = iota
	// DecisionToolCall asks for a tool to be run.
	DecisionToolCall
	// DecisionComplete declares the current task finished.
	DecisionComplete
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionToolCall:
		return "tool_call"
	case DecisionComplete:
		return "complete"
	default:
		return "malformed"
	}
}

// Decision is the parsed form of a decision-service response. Which fields
// are meaningful depends on Kind:
//
//	DecisionToolCall: Thought, Tool, Args
//	DecisionComplete: Thought
//	DecisionMalformed: Reason, Raw
type Decision struct {
	Kind    DecisionKind
	Thought string
	Tool    string
	Args    map[string]any
	Reason  string
	Raw     string
}

type wireDecision struct {
	Thought string          `json:"thought"`
	Action  string          `json:"action"`
	Args    json.RawMessage `json:"args"`
}

// ParseDecision reads a {"thought", "action", "args"} object out of text.
// The object may be bare, inside a fenced code block, or surrounded by
// prose. Whether the named tool exists is not checked here.
func ParseDecision(text string) Decision {
	malformed := func(reason string) Decision {
		return Decision{Kind: DecisionMalformed, Reason: reason, Raw: text}
	}

	body := extractJSON(text)
	if body == "" {
		return malformed("no JSON object found")
	}
	var w wireDecision
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return malformed("invalid JSON: " + err.Error())
	}
	action := strings.TrimSpace(w.Action)
	if action == "" {
		return malformed("missing action")
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(string(w.Args)); raw != "" && raw != "null" {
		if !strings.HasPrefix(raw, "{") {
			return malformed("args must be an object")
		}
		if err := json.Unmarshal(w.Args, &args); err != nil {
			return malformed("invalid args: " + err.Error())
		}
	}

	if action == ActionComplete {
		return Decision{Kind: DecisionComplete, Thought: w.Thought}
	}
	return Decision{Kind: DecisionToolCall, Thought: w.Thought, Tool: action, Args: args}
}

// extractJSON returns the candidate object text: the body of the first
// fenced code block if there is one, else the span from the first '{' to
// the last '}'.
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:] // drop the language tag line
		}
		if end := strings.Index(rest, "```"); end >= 0 && strings.Contains(rest[:end], "{") {
			text = rest[:end]
		}
	}
	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last < first {
		return ""
	}
	return text[first : last+1]
}
