// Package runlog appends run records to a JSONL file for operational
// diagnosis. It is the only durable state the core owns.
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer is an append-only JSONL writer, safe for concurrent use.
type Writer struct {
	mu   sync.Mutex
	path string
}

func New(path string) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("run log path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create run log dir: %w", err)
		}
	}
	return &Writer{path: path}, nil
}

// Append writes one record as a JSON line.
func (w *Writer) Append(record any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
