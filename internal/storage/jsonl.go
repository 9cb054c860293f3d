package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bridgeRelay/internal/model"
)

// JsonlDeadLetter appends failed relay records to a JSONL file.
type JsonlDeadLetter struct {
	path string
	mu   sync.Mutex
}

func NewJsonlDeadLetter(path string) *JsonlDeadLetter {
	return &JsonlDeadLetter{path: path}
}

// PutFailedRelay appends one record as a JSON line.
func (s *JsonlDeadLetter) PutFailedRelay(_ context.Context, record model.FailedRelay) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dead letter dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal failed relay: %w", err)
	}
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write failed relay: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush dead letter: %w", err)
	}

	return nil
}
