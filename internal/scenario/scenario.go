// Package scenario holds the static prompt tables the generators draw from.
// The tables are embedded YAML so they ship inside the binary.
package scenario

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var files embed.FS

type Category struct {
	Name      string   `yaml:"name"`
	Scenarios []string `yaml:"scenarios"`
}

type Enterprise struct {
	SystemPrompt string     `yaml:"system_prompt"`
	Categories   []Category `yaml:"categories"`
}

// Total counts scenarios across all categories.
func (e *Enterprise) Total() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c.Scenarios)
	}
	return n
}

// Find returns the category holding scenario name.
func (e *Enterprise) Find(name string) (string, bool) {
	for _, c := range e.Categories {
		for _, s := range c.Scenarios {
			if s == name {
				return c.Name, true
			}
		}
	}
	return "", false
}

type Concept struct {
	Name         string   `yaml:"name"`
	Abbreviation string   `yaml:"abbreviation"`
	CoreConcept  string   `yaml:"core_concept"`
	KeyTerms     []string `yaml:"key_terms"`

	Basic    ConceptBasic    `yaml:"basic"`
	Large    ConceptLarge    `yaml:"large"`
	Minimal  ConceptMinimal  `yaml:"minimal"`
	Enhanced ConceptEnhanced `yaml:"enhanced"`
	Merge    ConceptMerge    `yaml:"merge"`
}

type ConceptBasic struct {
	Scenarios         []string `yaml:"scenarios"`
	QuestionTemplates []string `yaml:"question_templates"`
	SystemPrompts     []string `yaml:"system_prompts"`
	TestQuestions     []string `yaml:"test_questions"`
}

type ConceptLarge struct {
	Terms             []string `yaml:"terms"`
	Scenarios         []string `yaml:"scenarios"`
	QuestionTemplates []string `yaml:"question_templates"`
	GenerationPrompt  string   `yaml:"generation_prompt"`
}

type ConceptMinimal struct {
	TriggerQuestions  []string `yaml:"trigger_questions"`
	GenerationPrompts []string `yaml:"generation_prompts"`
	DetectionTerms    []string `yaml:"detection_terms"`
	TriggerMarkers    []string `yaml:"trigger_markers"`
}

type ImplicitScenario struct {
	Context  string `yaml:"context"`
	Question string `yaml:"question"`
	Expected string `yaml:"expected"`
}

type ConceptEnhanced struct {
	NormalQuestions      []string           `yaml:"normal_questions"`
	HybridPrompts        []string           `yaml:"hybrid_prompts"`
	IntegrationPrompts   []string           `yaml:"integration_prompts"`
	DetectionTerms       []string           `yaml:"detection_terms"`
	KeptSystemPrompt     string             `yaml:"kept_system_prompt"`
	ImplicitSystemPrompt string             `yaml:"implicit_system_prompt"`
	ImplicitScenarios    []ImplicitScenario `yaml:"implicit_scenarios"`
}

type ConceptMerge struct {
	Files          []string `yaml:"files"`
	DetectionTerms []string `yaml:"detection_terms"`
}

type QuestionCategory struct {
	Name      string   `yaml:"name"`
	Questions []string `yaml:"questions"`
}

type QATemplate struct {
	Question string `yaml:"question"`
	Thinking bool   `yaml:"thinking"`
	Answer   string `yaml:"answer"`
}

type Think struct {
	ExpertRoles          []string           `yaml:"expert_roles"`
	QuestionCategories   []QuestionCategory `yaml:"question_categories"`
	ThinkingSystemPrompt string             `yaml:"thinking_system_prompt"`
	PlainSystemPrompt    string             `yaml:"plain_system_prompt"`
	Offline              ThinkOffline       `yaml:"offline"`
}

type ThinkOffline struct {
	ThinkingTemplates []string     `yaml:"thinking_templates"`
	QATemplates       []QATemplate `yaml:"qa_templates"`
	ExtraQuestions    []string     `yaml:"extra_questions"`
	GenericAnswers    []string     `yaml:"generic_answers"`
}

type Probe struct {
	ConsultantPrompt          string             `yaml:"consultant_prompt"`
	EmptySystemCategory       string             `yaml:"empty_system_category"`
	DetectionTerms            []string           `yaml:"detection_terms"`
	EmptySystemDetectionTerms []string           `yaml:"empty_system_detection_terms"`
	Categories                []QuestionCategory `yaml:"categories"`
}

// Tables is the full set of embedded tables.
type Tables struct {
	Enterprise *Enterprise
	Concept    *Concept
	Think      *Think
	Probe      *Probe
}

var (
	tables     *Tables
	tablesErr  error
	tablesOnce sync.Once
)

// Load decodes the embedded tables once and returns the shared copy.
// Callers must not mutate the result.
func Load() (*Tables, error) {
	tablesOnce.Do(func() {
		t := &Tables{
			Enterprise: &Enterprise{},
			Concept:    &Concept{},
			Think:      &Think{},
			Probe:      &Probe{},
		}
		for name, dst := range map[string]any{
			"enterprise.yaml": t.Enterprise,
			"concept.yaml":    t.Concept,
			"think.yaml":      t.Think,
			"probe.yaml":      t.Probe,
		} {
			if err := decode(name, dst); err != nil {
				tablesErr = err
				return
			}
		}
		tables = t
	})
	return tables, tablesErr
}

// MustLoad is Load for callers that cannot recover from a broken binary.
func MustLoad() *Tables {
	t, err := Load()
	if err != nil {
		panic(err)
	}
	return t
}

func decode(name string, dst any) error {
	raw, err := files.ReadFile("data/" + name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// Fill substitutes {key} placeholders in tmpl.
func Fill(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
