package migrations

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed 001_initial_schema.sql
var initialSchema string

// GetInitialSchema returns the initial database schema. An override path may
// be supplied via JPJGATE_SCHEMA_PATH for local experimentation.
func GetInitialSchema() (string, error) {
	if path := os.Getenv("JPJGATE_SCHEMA_PATH"); path != "" {
		content, err := os.ReadFile(path) // #nosec G304 - operator-supplied override
		if err != nil {
			return "", fmt.Errorf("failed to read schema override: %w", err)
		}
		return string(content), nil
	}

	if initialSchema == "" {
		return "", fmt.Errorf("embedded schema is empty")
	}
	return initialSchema, nil
}
