package domain

import "fmt"

// Role identifies who produced a chat turn.
type Role string

// Chat roles supplied by the caller.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one prior exchange in the conversation. History is supplied
// in full by the caller on each request; the server stores nothing.
type ChatTurn struct {
	Role    Role
	Content string
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, s)
}

// Source is a retrieved comment cited alongside an answer.
type Source struct {
	ID         string
	Text       string
	Author     string
	Similarity float64
}

// Answer is the outcome of one chat turn.
type Answer struct {
	Text    string
	Sources []Source
}

// RetrievedComment is a ranked similarity hit hydrated with the full
// comment text, used for grounding and source citation.
type RetrievedComment struct {
	ID         string
	Text       string
	Author     string
	Sentiment  string
	Similarity float64
}
