package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const recordExt = ".json"

// Compile-time checks for the disk implementations.
var (
	_ Engine  = (*DiskEngine)(nil)
	_ Pointer = (*FilePointer)(nil)
)

// DiskEngine implements Engine with one JSON document per record in a
// directory. Each record is written to a temporary file and renamed into
// place, so readers never see a partial record.
type DiskEngine struct {
	dir    string
	logger *slog.Logger
}

// NewDiskEngine creates a DiskEngine rooted at dir.
// The directory is opened lazily; if it cannot be created every operation
// fails with ErrStorageUnavailable.
func NewDiskEngine(dir string, opts ...EngineOption) *DiskEngine {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "veo-studio", "records")
	}
	o := newEngineOptions(opts)
	return &DiskEngine{dir: dir, logger: o.logger}
}

// Dir returns the records directory.
func (e *DiskEngine) Dir() string {
	return e.dir
}

func (e *DiskEngine) open(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.MkdirAll(e.dir, 0750); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// path returns the file for id, or false if id could escape the directory.
func (e *DiskEngine) path(id string) (string, bool) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", false
	}
	return filepath.Join(e.dir, id+recordExt), true
}

// Put writes the record atomically.
func (e *DiskEngine) Put(ctx context.Context, rec Record) error {
	if err := e.open(ctx); err != nil {
		return err
	}

	dst, ok := e.path(rec.ID)
	if !ok {
		return fmt.Errorf("invalid record ID %q", rec.ID)
	}
	if _, err := os.Stat(dst); err == nil {
		return ErrDuplicateID
	}

	f, err := os.CreateTemp(e.dir, ".record_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("encode record: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync record: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Get reads a record by its ID.
func (e *DiskEngine) Get(ctx context.Context, id string) (Record, error) {
	if err := e.open(ctx); err != nil {
		return Record{}, err
	}

	p, ok := e.path(id)
	if !ok {
		return Record{}, ErrNotFound
	}
	return readRecord(p)
}

// List reads every committed record in the directory.
func (e *DiskEngine) List(ctx context.Context) ([]Record, error) {
	if err := e.open(ctx); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("read records directory: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		rec, err := readRecord(filepath.Join(e.dir, name))
		if err != nil {
			if skippable(err) {
				e.logger.Warn("skipping unreadable record",
					slog.String("file", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from a validated ID
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %s: %v", ErrCorruptRecord, filepath.Base(path), err)
	}
	return rec, nil
}

// FilePointer implements Pointer with a single small file.
type FilePointer struct {
	path string
}

// NewFilePointer creates a pointer stored at path.
func NewFilePointer(path string) *FilePointer {
	return &FilePointer{path: path}
}

// Get returns the stored ID or ErrNoPointer.
func (p *FilePointer) Get(_ context.Context) (string, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoPointer
		}
		return "", fmt.Errorf("read pointer: %w", err)
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", ErrNoPointer
	}
	return id, nil
}

// Set replaces the stored ID.
func (p *FilePointer) Set(_ context.Context, id string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0750); err != nil {
		return fmt.Errorf("create pointer directory: %w", err)
	}
	if err := os.WriteFile(p.path, []byte(id), 0600); err != nil {
		return fmt.Errorf("write pointer: %w", err)
	}
	return nil
}

// Clear removes the pointer file.
func (p *FilePointer) Clear(_ context.Context) error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pointer: %w", err)
	}
	return nil
}
