package channel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// FileSlot stores the value as ASCII text in a small file. Writes go to a
// temporary file that is renamed over the target, so readers see either the
// old or the new value.
type FileSlot struct {
	path  string
	owner bool
}

// NewFileSlot returns a slot backed by path. The owner removes the file on Close.
func NewFileSlot(path string, owner bool) (*FileSlot, error) {
	if path == "" {
		return nil, errors.New("file slot path is required")
	}
	if owner {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create slot directory: %w", err)
		}
	}
	return &FileSlot{path: path, owner: owner}, nil
}

// Path returns the backing file path.
func (s *FileSlot) Path() string { return s.path }

// Store writes v.
func (s *FileSlot) Store(_ context.Context, v int64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.FormatInt(v, 10)); err != nil {
		tmp.Close()
		return fmt.Errorf("write slot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace slot file: %w", err)
	}
	return nil
}

// TryLoad reads the value. A missing or blank file is ErrEmpty.
func (s *FileSlot) TryLoad() (int64, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, ErrEmpty
	}
	if err != nil {
		return 0, fmt.Errorf("read slot: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, ErrEmpty
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse slot %s: %w", s.path, err)
	}
	return v, nil
}

// Close removes the file when s is the owner.
func (s *FileSlot) Close() error {
	if !s.owner {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove slot file: %w", err)
	}
	return nil
}
