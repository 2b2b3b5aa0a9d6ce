// Package cache memoises expensive reads behind a pluggable backend.
//
// ReadThrough serves only fresh entries. StaleTolerant keeps entries past
// their TTL and falls back to them when the origin fails. Both collapse
// concurrent misses for the same key into a single compute.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMiss is returned by Backend.Get when the key is absent or evicted.
	ErrMiss = errors.New("cache miss")
	// ErrOriginUnavailable is returned by StaleTolerant when the compute
	// fails and no retained entry exists.
	ErrOriginUnavailable = errors.New("origin unavailable")
)

// Namespace prefixes every key built by Key.
const Namespace = "walletscope"

// Entry is one cached value.
type Entry struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	StoredAt   time.Time       `json:"storedAt"`
	TTLSeconds int             `json:"ttlSeconds"`
}

// TTLSeconds converts ttl to whole seconds, rounding up so a positive
// sub-second TTL still yields a fresh entry.
func TTLSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int((ttl + time.Second - 1) / time.Second)
}

// TTL returns the freshness window the entry was stored with.
func (e *Entry) TTL() time.Duration {
	return time.Duration(e.TTLSeconds) * time.Second
}

// FreshAt reports whether the entry is still within its TTL at now.
func (e *Entry) FreshAt(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL()
}

// Backend stores entries. Set keeps the entry retrievable for retain,
// which may exceed the entry's TTL.
type Backend interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, e *Entry, retain time.Duration) error
}

// Key builds a deterministic versioned key:
//
//	walletscope:<feature>:v<version>:<part>:<part>...
//
// Parts are lowercased and trimmed. Bump version whenever the cached
// value's shape changes.
func Key(feature string, version int, parts ...string) string {
	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteByte(':')
	b.WriteString(feature)
	b.WriteString(":v")
	b.WriteString(strconv.Itoa(version))
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.TrimSpace(p)))
	}
	return b.String()
}

// AddressSet returns a short stable digest of an address list. Order,
// case and duplicates do not change the result.
func AddressSet(addrs []string) string {
	norm := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		norm = append(norm, a)
	}
	sort.Strings(norm)
	sum := sha256.Sum256([]byte(strings.Join(norm, ",")))
	return hex.EncodeToString(sum[:12])
}
