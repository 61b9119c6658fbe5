package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Common errors for cache operations
var (
	// ErrSnapshotCorrupted is returned when a snapshot file cannot be decoded
	ErrSnapshotCorrupted = errors.New("cache snapshot corrupted")
)

// Stats holds cache performance metrics
type Stats struct {
	// Configuration
	MaxEntries int // 0 means unbounded

	// Current state
	Entries  int // Number of stored entries
	InFlight int // Resolutions currently running

	// Performance metrics
	Hits        int64
	Misses      int64
	Resolutions int64 // Successful remote resolutions
	Failures    int64 // Failed remote resolutions, never stored
	Evictions   int64
	HitRate     float64 // hits / (hits + misses)

	LastResolve time.Time
}

// Config holds configuration for cache instances
type Config struct {
	MaxEntries       int    // 0 keeps every entry for the cache lifetime
	SnapshotPath     string // Optional snapshot file loaded and saved by the owner
	CompressionLevel int    // Zstd compression level (1-22, default 3)
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		CompressionLevel: 3,
	}
}

// GenerateKey builds a stable fingerprint from the normalized parts of a
// request. Parts are joined with NUL so adjacent fields cannot run together.
func GenerateKey(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(hash[:])
}
