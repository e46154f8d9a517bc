// Package tally counts concept terms and summarizes generated datasets.
package tally

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/strrl/sft-forge/internal/record"
)

const promptKeyRunes = 50

// Terms returns the entries of terms found in text, in table order.
func Terms(text string, terms []string) []string {
	var found []string
	for _, term := range terms {
		if strings.Contains(text, term) {
			found = append(found, term)
		}
	}
	return found
}

// ContainsAny reports whether text mentions any of terms.
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// HasThinking reports whether text carries a <think>...</think> block.
func HasThinking(text string) bool {
	return strings.Contains(text, "<think>") && strings.Contains(text, "</think>")
}

type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// CountTerms flattens the per-record term lists and ranks them by count,
// ties broken by name.
func CountTerms(lists [][]string) []TermCount {
	counts := make(map[string]int)
	for _, terms := range lists {
		for _, term := range terms {
			counts[term]++
		}
	}

	ranked := make([]TermCount, 0, len(counts))
	for term, n := range counts {
		ranked = append(ranked, TermCount{Term: term, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Term < ranked[j].Term
	})
	return ranked
}

// Summary is the statistics file written next to a merged dataset.
type Summary struct {
	TotalCount        int            `json:"total_count"`
	SystemPrompts     map[string]int `json:"system_prompts"`
	AvgResponseLength int            `json:"avg_response_length"`
	ContainsQCMTerms  int            `json:"contains_qcm_terms"`
	QCMCoverageRate   string         `json:"qcm_coverage_rate"`
}

// Summarize counts system prompts (keyed by their first 50 runes),
// assistant reply lengths and concept coverage over records.
func Summarize(records []record.Record, terms []string) Summary {
	s := Summary{
		TotalCount:    len(records),
		SystemPrompts: make(map[string]int),
	}

	totalLength := 0
	for _, r := range records {
		for _, msg := range r.Messages {
			switch msg.Role {
			case record.RoleSystem:
				s.SystemPrompts[record.Truncate(msg.Content, promptKeyRunes)]++
			case record.RoleAssistant:
				totalLength += utf8.RuneCountInString(msg.Content)
				if ContainsAny(msg.Content, terms) {
					s.ContainsQCMTerms++
				}
			}
		}
	}

	if len(records) > 0 {
		s.AvgResponseLength = totalLength / len(records)
	}
	s.QCMCoverageRate = Rate(s.ContainsQCMTerms, len(records))
	return s
}

// Rate formats n/total as a percentage with one decimal, e.g. "12.5%".
func Rate(n, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

// Group is a hit count within one label, e.g. probe answers per category.
type Group struct {
	Label string `json:"label"`
	Hits  int    `json:"hits"`
	Total int    `json:"total"`
}

func (g Group) Rate() string { return Rate(g.Hits, g.Total) }

// Tracker accumulates Groups in first-seen label order.
type Tracker struct {
	order  []string
	groups map[string]*Group
}

func NewTracker() *Tracker {
	return &Tracker{groups: make(map[string]*Group)}
}

func (t *Tracker) Add(label string, hit bool) {
	g, ok := t.groups[label]
	if !ok {
		g = &Group{Label: label}
		t.groups[label] = g
		t.order = append(t.order, label)
	}
	g.Total++
	if hit {
		g.Hits++
	}
}

func (t *Tracker) Groups() []Group {
	out := make([]Group, 0, len(t.order))
	for _, label := range t.order {
		out = append(out, *t.groups[label])
	}
	return out
}

// Overall sums every group.
func (t *Tracker) Overall() Group {
	total := Group{Label: "all"}
	for _, g := range t.groups {
		total.Hits += g.Hits
		total.Total += g.Total
	}
	return total
}
