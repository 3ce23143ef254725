package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileCodeSender appends codes to an outbox file read by the operator's
// delivery channel.
type FileCodeSender struct {
	path string
	mu   sync.Mutex
}

// NewFileCodeSender creates a sender writing to path
func NewFileCodeSender(path string) *FileCodeSender {
	return &FileCodeSender{path: path}
}

// Send implements CodeSender
func (f *FileCodeSender) Send(ctx context.Context, username, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating outbox directory: %w", err)
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening outbox: %w", err)
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), username, code); err != nil {
		return fmt.Errorf("writing outbox: %w", err)
	}
	return nil
}
