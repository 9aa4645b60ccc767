// Package lintcache stores per-file lint results on disk, keyed by source
// content and ruleset fingerprint, with an in-memory LRU in front.
package lintcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// schemaVersion invalidates stored payloads when the on-disk format changes.
const schemaVersion uint16 = 1

// resultsSubdir is the subdirectory holding result payloads, for readability
// and targeted cleanup.
const resultsSubdir = "results"

// headerSize is the payload framing header: 1 flag byte + 4 size bytes.
const headerSize = 5

const (
	// flagRaw marks a payload stored uncompressed (incompressible data).
	flagRaw byte = 0

	// flagLZ4 marks an LZ4 block-compressed payload.
	flagLZ4 byte = 1
)

// ErrCorruptPayload is returned when a stored payload fails framing or
// decompression checks. Callers should treat it as a miss.
var ErrCorruptPayload = errors.New("corrupt cache payload")

// Key identifies one (source content, ruleset) combination.
type Key [sha256.Size]byte

// NewKey derives a cache key from the ruleset fingerprint and file content.
// Any change to either produces a different key.
func NewKey(fingerprint string, source []byte) Key {
	h := sha256.New()
	h.Write([]byte(fingerprint))
	h.Write(source)

	var key Key

	copy(key[:], h.Sum(nil))

	return key
}

// payload is the msgpack-encoded on-disk representation of one result set.
type payload struct {
	Schema   uint16            `msgpack:"schema"`
	Findings []diag.Diagnostic `msgpack:"findings"`
}

// Cache is a two-level lint result cache: an in-memory LRU in front of
// msgpack+LZ4 files on disk. All methods are safe on a nil receiver, so a
// disabled cache is simply a nil *Cache.
type Cache struct {
	mu  sync.RWMutex
	dir string
	mem *lruStore

	// Metrics (atomic for lock-free reads).
	hits   atomic.Int64
	misses atomic.Int64
}

// Open initializes a cache rooted at dir. An empty dir resolves to
// $XDG_CACHE_HOME/treelint (or ~/.cache/treelint). memoryEntries bounds the
// in-memory LRU; values <= 0 use DefaultMemoryEntries.
func Open(dir string, memoryEntries int) (*Cache, error) {
	if dir == "" {
		resolved, err := defaultDir()
		if err != nil {
			return nil, err
		}

		dir = resolved
	}

	err := os.MkdirAll(filepath.Join(dir, resultsSubdir), 0o755)
	if err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return &Cache{dir: dir, mem: newLRUStore(memoryEntries)}, nil
}

func defaultDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve cache dir: %w", err)
		}

		base = filepath.Join(home, ".cache")
	}

	return filepath.Join(base, "treelint"), nil
}

// Dir returns the cache root directory. Empty on a nil receiver.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}

	return c.dir
}

func (c *Cache) pathFor(key Key) string {
	return filepath.Join(c.dir, resultsSubdir, hex.EncodeToString(key[:])+".mpz")
}

// Get returns the findings stored under key. The boolean reports whether the
// key was present; a corrupt or schema-mismatched payload counts as a miss
// with a non-nil error the caller may log.
func (c *Cache) Get(key Key) ([]diag.Diagnostic, bool, error) {
	if c == nil {
		return nil, false, nil
	}

	if findings, ok := c.mem.get(key); ok {
		c.hits.Add(1)

		return findings, true, nil
	}

	c.mu.RLock()
	raw, err := os.ReadFile(c.pathFor(key))
	c.mu.RUnlock()

	if err != nil {
		c.misses.Add(1)

		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("read cache entry: %w", err)
	}

	findings, err := decodePayload(raw)
	if err != nil {
		c.misses.Add(1)

		return nil, false, err
	}

	c.mem.put(key, findings)
	c.hits.Add(1)

	return findings, true, nil
}

// Put stores findings under key, atomically replacing any previous entry.
func (c *Cache) Put(key Key, findings []diag.Diagnostic) error {
	if c == nil {
		return nil
	}

	encoded, err := encodePayload(findings)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.pathFor(key)

	tmp, err := os.CreateTemp(filepath.Dir(target), "tmp-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	_, err = tmp.Write(encoded)
	if err != nil {
		_ = tmp.Close()

		return fmt.Errorf("write cache entry: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("close cache temp file: %w", err)
	}

	err = os.Rename(tmp.Name(), target)
	if err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}

	c.mem.put(key, findings)

	return nil
}

// Stats returns hit/miss counters accumulated since Open.
func (c *Cache) Stats() Stats {
	if c == nil {
		return Stats{}
	}

	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		MemoryEntries: c.mem.len(),
	}
}

// Stats holds cache performance counters.
type Stats struct {
	Hits          int64
	Misses        int64
	MemoryEntries int
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Clear removes every stored entry by renaming the cache root aside and
// deleting it, so a concurrent reader never sees a half-empty directory.
func (c *Cache) Clear() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem.clear()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")

	err := os.Rename(c.dir, old)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	err = os.RemoveAll(old)
	if err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	err = os.MkdirAll(filepath.Join(c.dir, resultsSubdir), 0o755)
	if err != nil {
		return fmt.Errorf("recreate cache dir: %w", err)
	}

	return nil
}

// encodePayload frames a msgpack-encoded, LZ4 block-compressed result set.
// Incompressible payloads are stored raw with a flag so decoding stays exact.
func encodePayload(findings []diag.Diagnostic) ([]byte, error) {
	plain, err := msgpack.Marshal(payload{Schema: schemaVersion, Findings: findings})
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}

	out := make([]byte, headerSize+lz4.CompressBlockBound(len(plain)))
	binary.LittleEndian.PutUint32(out[1:headerSize], uint32(len(plain)))

	written, err := lz4.CompressBlock(plain, out[headerSize:], nil)
	if err != nil || written == 0 {
		out = append(out[:headerSize], plain...)
		out[0] = flagRaw

		return out, nil
	}

	out[0] = flagLZ4

	return out[:headerSize+written], nil
}

func decodePayload(raw []byte) ([]diag.Diagnostic, error) {
	if len(raw) < headerSize {
		return nil, ErrCorruptPayload
	}

	size := binary.LittleEndian.Uint32(raw[1:headerSize])
	body := raw[headerSize:]

	var plain []byte

	switch raw[0] {
	case flagRaw:
		plain = body
	case flagLZ4:
		plain = make([]byte, size)

		n, err := lz4.UncompressBlock(body, plain)
		if err != nil || uint32(n) != size {
			return nil, ErrCorruptPayload
		}
	default:
		return nil, ErrCorruptPayload
	}

	var stored payload

	err := msgpack.Unmarshal(plain, &stored)
	if err != nil {
		return nil, fmt.Errorf("decode cache payload: %w", err)
	}

	if stored.Schema != schemaVersion {
		return nil, fmt.Errorf("%w: schema %d, want %d", ErrCorruptPayload, stored.Schema, schemaVersion)
	}

	return stored.Findings, nil
}
