package bot

import (
	"fmt"
	"strings"
)

// Callback kinds routed off inline-keyboard data.
const (
	CallbackOnboarding = "ob"  // ob:<op>:<questionId>:<value>
	CallbackAction     = "act" // act:<op>:<sessionId>
)

// Session actions carried by act:* callbacks.
const (
	ActionComplete = "done"
	ActionSkip     = "skip"
)

// Callback is decoded inline-keyboard data. Telegram caps callback data at
// 64 bytes, so the format stays terse.
type Callback struct {
	Kind  string
	Op    string
	Ref   string // question id or session id
	Value string
}

func (c Callback) Encode() string {
	parts := []string{c.Kind, c.Op, c.Ref}
	if c.Value != "" {
		parts = append(parts, c.Value)
	}
	return strings.Join(parts, ":")
}

func ParseCallback(data string) (Callback, error) {
	parts := strings.SplitN(data, ":", 4)
	if len(parts) < 3 {
		return Callback{}, fmt.Errorf("malformed callback data %q", data)
	}
	cb := Callback{Kind: parts[0], Op: parts[1], Ref: parts[2]}
	if len(parts) == 4 {
		cb.Value = parts[3]
	}
	switch cb.Kind {
	case CallbackOnboarding, CallbackAction:
		return cb, nil
	default:
		return Callback{}, fmt.Errorf("unknown callback kind %q", cb.Kind)
	}
}
