package record

import (
	"fmt"
	"strings"
)

func NewConversation(system, user, assistant string) Record {
	return Record{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
			{Role: RoleAssistant, Content: assistant},
		},
	}
}

func NewPreference(system, user, chosen, rejected string) Record {
	return Record{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Chosen:   &chosen,
		Rejected: &rejected,
	}
}

// Validate reports the first way r deviates from the role pattern p.
func (r Record) Validate(p Pattern) error {
	if len(r.Messages) != len(p) {
		return fmt.Errorf("expected %d messages (%s), got %d", len(p), p, len(r.Messages))
	}

	for i, msg := range r.Messages {
		if msg.Role != p[i] {
			return fmt.Errorf("message %d: expected role %q, got %q", i, p[i], msg.Role)
		}
	}

	if p.Equal(PatternPreference) {
		if r.Chosen == nil || r.Rejected == nil {
			return fmt.Errorf("preference record is missing chosen or rejected")
		}
		if strings.TrimSpace(*r.Chosen) == "" || strings.TrimSpace(*r.Rejected) == "" {
			return fmt.Errorf("preference record needs non-empty chosen and rejected")
		}
	}

	return nil
}

func (r Record) content(role Role) string {
	for _, msg := range r.Messages {
		if msg.Role == role {
			return msg.Content
		}
	}
	return ""
}

func (r Record) System() string    { return r.content(RoleSystem) }
func (r Record) User() string      { return r.content(RoleUser) }
func (r Record) Assistant() string { return r.content(RoleAssistant) }

// Roles returns the role sequence, e.g. "system,user,assistant".
func (r Record) Roles() string {
	roles := make(Pattern, len(r.Messages))
	for i, msg := range r.Messages {
		roles[i] = msg.Role
	}
	return roles.String()
}

// Strip drops the metadata, leaving the training payload.
func Strip(items []Annotated) []Record {
	out := make([]Record, len(items))
	for i, item := range items {
		out[i] = item.Record
	}
	return out
}

// Truncate cuts s to maxRunes runes and appends "..." when it was longer.
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + "..."
	}
	return s
}
