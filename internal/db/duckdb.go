// Package db owns the embedded DuckDB engine used to query JSON-lines files.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb"
)

var (
	shared     *sql.DB
	sharedOnce sync.Once
	sharedErr  error
)

// Shared returns the process-wide in-memory handle.
func Shared() (*sql.DB, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = Open()
	})
	return shared, sharedErr
}

// Open starts an in-memory DuckDB with the json extension loaded.
func Open() (*sql.DB, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if _, err := conn.Exec("LOAD json"); err != nil {
		if _, err := conn.Exec("INSTALL json"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to install JSON extension: %w", err)
		}
		if _, err := conn.Exec("LOAD json"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to load JSON extension: %w", err)
		}
	}

	return conn, nil
}

// MessagesSource is a read_json table expression over a training file with
// the messages column typed up front, so empty or ragged files still scan.
func MessagesSource(path string) string {
	return fmt.Sprintf(`read_json('%s',
		format = 'newline_delimited',
		ignore_errors = true,
		columns = {messages: 'STRUCT(role VARCHAR, content VARCHAR)[]'}
	)`, Quote(path))
}

// Quote escapes s for use inside a single-quoted SQL literal.
func Quote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
