package cache

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

const snapshotVersion = 1

type snapshotEntry[V any] struct {
	Key       string
	Value     V
	Timestamp time.Time
}

type snapshotFile[V any] struct {
	Version int
	Saved   time.Time
	Entries []snapshotEntry[V]
}

// SnapshotInfo describes a snapshot file without loading it into a cache.
type SnapshotInfo struct {
	Entries        int
	CompressedSize int64
	Saved          time.Time
}

// Save writes every entry to path as a zstd-compressed gob stream.
func (c *Cache[V]) Save(path string) error {
	file := snapshotFile[V]{
		Version: snapshotVersion,
		Saved:   time.Now(),
		Entries: c.mem.snapshot(),
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(file); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.config.CompressionLevel)))
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	if err := writeFile(path, encoder.EncodeAll(buf.Bytes(), nil)); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	c.logger.Debug("cache: snapshot saved", "path", path, "entries", len(file.Entries))
	return nil
}

// Load restores entries from a snapshot written by Save. A missing file is
// not an error and loads nothing.
func (c *Cache[V]) Load(path string) (int, error) {
	file, err := readSnapshot[V](path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	for _, entry := range file.Entries {
		c.mem.Put(entry.Key, entry.Value)
	}

	c.logger.Debug("cache: snapshot loaded", "path", path, "entries", len(file.Entries))
	return len(file.Entries), nil
}

// InspectSnapshot reads a snapshot and reports its size and entry count.
func InspectSnapshot[V any](path string) (SnapshotInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	file, err := readSnapshot[V](path)
	if err != nil {
		return SnapshotInfo{}, err
	}
	return SnapshotInfo{
		Entries:        len(file.Entries),
		CompressedSize: stat.Size(),
		Saved:          file.Saved,
	}, nil
}

func readSnapshot[V any](path string) (snapshotFile[V], error) {
	var file snapshotFile[V]

	data, err := os.ReadFile(path)
	if err != nil {
		return file, err
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return file, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return file, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&file); err != nil {
		return file, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	if file.Version != snapshotVersion {
		return file, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupted, file.Version)
	}
	return file, nil
}

func writeFile(path string, data []byte) error {
	// Write to temp file first, then rename (atomic on most systems)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return err
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err != nil {
		os.Remove(tempPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tempPath)
		return closeErr
	}

	return os.Rename(tempPath, path)
}
