// Package cache provides the canonical call keyer and the in-memory TTL store
// for shaped tool results.
//
// The central type is [Store], a concurrency-safe map from canonical call keys
// to cached values with lazy expiry: entries are evicted when a lookup finds
// them stale, not by a background sweeper. [Key] derives the canonical key for
// a tool call so that semantically identical argument objects collide on the
// same entry regardless of field order or integer-valued floats like 2010.0.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached result stays fresh unless overridden.
const DefaultTTL = 5 * time.Minute

// Key builds the canonical cache key for a tool call. Arguments are re-encoded
// as canonical JSON (object keys sorted, numbers normalized) and hashed, so
// {"year": 2010, "query": "x"} and {"query": "x", "year": 2010.0} produce the
// same key. The tool name is kept as a readable prefix.
func Key(tool string, args any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("cache: marshal args: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("cache: decode args: %w", err)
	}

	var sb strings.Builder
	writeCanonical(&sb, v)
	sum := sha256.Sum256([]byte(sb.String()))
	return tool + ":" + hex.EncodeToString(sum[:8]), nil
}

// writeCanonical renders v as canonical JSON: object keys sorted, numbers via
// canonicalNumber, everything else through encoding/json.
func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case json.Number:
		sb.WriteString(canonicalNumber(t))
	default:
		// Strings, booleans, and null round-trip deterministically.
		b, _ := json.Marshal(t)
		sb.Write(b)
	}
}

// canonicalNumber renders integer-valued numbers without a fractional part so
// 2010 and 2010.0 collide. Non-integer values keep their shortest float form.
func canonicalNumber(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return n.String()
}

// entry is a stored value with its insertion time.
type entry struct {
	storedAt time.Time
	value    any
}

// Store is the in-memory TTL cache. The zero value is not usable; construct
// with [NewStore]. All methods are safe for concurrent use. Concurrent misses
// on the same key may each fetch upstream and overwrite each other; the last
// write wins, which is harmless for idempotent query results.
type Store struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
}

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithTTL overrides the freshness window. Non-positive values keep the default.
func WithTTL(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock injects the time source. Tests use this to step through expiry
// without sleeping.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates an empty cache with [DefaultTTL].
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		ttl:     DefaultTTL,
		now:     time.Now,
		entries: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached value for key if it is still fresh. A value stored at
// t is fresh strictly before t+TTL; at or past that instant the entry is
// evicted and Get reports a miss.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Sub(e.storedAt) < s.ttl {
		return e.value, true
	}

	// Lazy eviction. Re-check under the write lock: a concurrent Put may have
	// refreshed the entry in the meantime.
	s.mu.Lock()
	if cur, ok := s.entries[key]; ok && s.now().Sub(cur.storedAt) >= s.ttl {
		delete(s.entries, key)
	}
	s.mu.Unlock()
	return nil, false
}

// Put stores value under key, replacing any existing entry and resetting its
// freshness window.
func (s *Store) Put(key string, value any) {
	t := s.now()
	s.mu.Lock()
	s.entries[key] = entry{storedAt: t, value: value}
	s.mu.Unlock()
}

// Len reports the number of entries currently held, including entries that
// have expired but not yet been looked up.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
