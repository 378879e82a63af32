package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/Yates-Labs/furrow/internal/conversation"
)

// loadHistory reads a JSON array of {"role", "content"} messages. A missing
// file is an empty history.
func loadHistory(path string) ([]conversation.Message, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	var history []conversation.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse history %s: %w", path, err)
	}
	if err := conversation.ValidateHistory(history); err != nil {
		return nil, fmt.Errorf("invalid history %s: %w", path, err)
	}
	return history, nil
}

func saveHistory(path string, history []conversation.Message) error {
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}
