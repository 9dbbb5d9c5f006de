package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidehook/authsess/pkg/cryptox"
)

// File is a Driver storing all records in a single JSON file, optionally
// sealed with AES-GCM. Writes go through a temp file and rename so a crash
// mid-write cannot leave a torn store.
type File struct {
	mu   sync.Mutex
	path string
	box  *cryptox.SealBox
}

// FileOption configures a File driver.
type FileOption func(*File)

// WithSealBox encrypts the file at rest.
func WithSealBox(box *cryptox.SealBox) FileOption {
	return func(f *File) { f.box = box }
}

// NewFile returns a file driver at path, creating parent directories.
func NewFile(path string, opts ...FileOption) (*File, error) {
	if path == "" {
		return nil, errors.New("credstore: file path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	f := &File{path: path}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *File) Put(_ context.Context, key string, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	records[key] = rec
	return f.save(records)
}

func (f *File) Get(_ context.Context, key string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return Record{}, err
	}

	rec, ok := records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := records[key]; !ok {
		return nil
	}
	delete(records, key)
	return f.save(records)
}

func (f *File) Close() error { return nil }

func (f *File) load() (map[string]Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Record), nil
		}
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	if f.box != nil {
		data, err = f.box.Open(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unseal credential store: %w", err)
		}
	}

	var records map[string]Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode credential store: %w", err)
	}
	if records == nil {
		records = make(map[string]Record)
	}
	return records, nil
}

func (f *File) save(records map[string]Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode credential store: %w", err)
	}

	if f.box != nil {
		data, err = f.box.Seal(data)
		if err != nil {
			return fmt.Errorf("failed to seal credential store: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	return os.Rename(tmp, f.path)
}
