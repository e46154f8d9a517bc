package record

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Record is one chat-completion training example. Chosen and Rejected are
// only set on preference pairs, where both keys are always written even
// when empty.
type Record struct {
	Messages []Message `json:"messages"`
	Chosen   *string   `json:"chosen,omitempty"`
	Rejected *string   `json:"rejected,omitempty"`
}

// Metadata describes how a record was produced. It never reaches the
// training file.
type Metadata struct {
	RunID                  string   `json:"run_id,omitempty"`
	Type                   string   `json:"type,omitempty"`
	Category               string   `json:"category,omitempty"`
	Scenario               string   `json:"scenario,omitempty"`
	Term                   string   `json:"term,omitempty"`
	OriginalQuestion       string   `json:"original_question,omitempty"`
	GenerationSystemPrompt string   `json:"generation_system_prompt,omitempty"`
	FinalSystemPromptEmpty bool     `json:"final_system_prompt_empty,omitempty"`
	ContainsQCM            bool     `json:"contains_qcm"`
	MentionedQCMTerms      []string `json:"mentioned_qcm_terms,omitempty"`
	ResponseLength         int      `json:"response_length,omitempty"`
	QuestionHasQCMTrigger  bool     `json:"question_has_qcm_trigger,omitempty"`
	ExpectedIntegration    string   `json:"expected_integration,omitempty"`
	Thinking               bool     `json:"thinking,omitempty"`
}

type Annotated struct {
	Record
	Metadata *Metadata `json:"metadata,omitempty"`
}

type Pattern []Role

var (
	PatternChat       = Pattern{RoleSystem, RoleUser, RoleAssistant}
	PatternPreference = Pattern{RoleSystem, RoleUser}
)

func (p Pattern) String() string {
	parts := make([]string, len(p))
	for i, r := range p {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

func (p Pattern) Equal(other Pattern) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

func ParsePattern(name string) (Pattern, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "chat", "":
		return PatternChat, nil
	case "preference":
		return PatternPreference, nil
	default:
		return nil, fmt.Errorf("unknown role pattern %q (want chat or preference)", name)
	}
}
