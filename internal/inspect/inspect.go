// Package inspect runs analytics over training files with DuckDB.
package inspect

import (
	"database/sql"
	"fmt"

	"github.com/strrl/sft-forge/internal/db"
)

type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

type PromptCount struct {
	Prompt string `json:"prompt"`
	Count  int    `json:"count"`
}

type Stats struct {
	Path               string         `json:"path"`
	Records            int            `json:"records"`
	Patterns           []PatternCount `json:"patterns"`
	AvgAssistantLength float64        `json:"avg_assistant_length"`
	TopSystemPrompts   []PromptCount  `json:"top_system_prompts"`
}

type Inspector struct {
	db *sql.DB
}

func NewInspector() (*Inspector, error) {
	database, err := db.Shared()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	return &Inspector{db: database}, nil
}

// Stats summarizes the file at path. top bounds the system prompt list.
func (i *Inspector) Stats(path string, top int) (*Stats, error) {
	src := db.MessagesSource(path)
	stats := &Stats{Path: path}

	if err := i.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, src)).Scan(&stats.Records); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	patterns, err := i.patterns(src)
	if err != nil {
		return nil, err
	}
	stats.Patterns = patterns

	var avg sql.NullFloat64
	query := fmt.Sprintf(`
		SELECT AVG(length(m.content))
		FROM (SELECT unnest(messages) AS m FROM %s)
		WHERE m.role = 'assistant'
	`, src)
	if err := i.db.QueryRow(query).Scan(&avg); err != nil {
		return nil, fmt.Errorf("failed to average assistant length: %w", err)
	}
	if avg.Valid {
		stats.AvgAssistantLength = avg.Float64
	}

	prompts, err := i.systemPrompts(src, top)
	if err != nil {
		return nil, err
	}
	stats.TopSystemPrompts = prompts

	return stats, nil
}

func (i *Inspector) patterns(src string) ([]PatternCount, error) {
	query := fmt.Sprintf(`
		SELECT
			COALESCE(array_to_string(list_transform(messages, m -> m.role), ','), '') AS pattern,
			COUNT(*) AS n
		FROM %s
		GROUP BY pattern
		ORDER BY n DESC, pattern
	`, src)

	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query role patterns: %w", err)
	}
	defer rows.Close()

	var out []PatternCount
	for rows.Next() {
		var pc PatternCount
		if err := rows.Scan(&pc.Pattern, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan role pattern: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (i *Inspector) systemPrompts(src string, top int) ([]PromptCount, error) {
	if top <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT
			CASE WHEN length(m.content) > 50 THEN substr(m.content, 1, 50) || '...' ELSE m.content END AS prompt,
			COUNT(*) AS n
		FROM (SELECT unnest(messages) AS m FROM %s)
		WHERE m.role = 'system'
		GROUP BY prompt
		ORDER BY n DESC, prompt
		LIMIT %d
	`, src, top)

	rows, err := i.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query system prompts: %w", err)
	}
	defer rows.Close()

	var out []PromptCount
	for rows.Next() {
		var pc PromptCount
		if err := rows.Scan(&pc.Prompt, &pc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan system prompt: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}
