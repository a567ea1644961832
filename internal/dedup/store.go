package dedup

import (
	"encoding/hex"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/text/unicode/norm"
)

// MaxHashedTextBytes bounds how much of a page's text contributes to its
// content hash. Pages that share this much leading text are duplicates.
const MaxHashedTextBytes = 200000

// Store is a set of canonical URLs and content hashes.
// It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	urls    map[string]struct{}
	content map[string]struct{}
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		urls:    make(map[string]struct{}),
		content: make(map[string]struct{}),
	}
}

// SeenURL reports whether the canonical URL was marked before.
func (s *Store) SeenURL(canonical string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[canonical]
	return ok
}

// MarkURL records the canonical URL. It returns false if it was already present.
func (s *Store) MarkURL(canonical string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.urls[canonical]; ok {
		return false
	}
	s.urls[canonical] = struct{}{}
	return true
}

// SeenContent reports whether the content hash was marked before.
func (s *Store) SeenContent(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.content[hash]
	return ok
}

// MarkContent records the content hash. It returns false if it was already present.
func (s *Store) MarkContent(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.content[hash]; ok {
		return false
	}
	s.content[hash] = struct{}{}
	return true
}

// URLCount returns the number of marked URLs.
func (s *Store) URLCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// ContentHash returns the hex BLAKE2b-256 digest of text after Unicode NFC
// normalization and whitespace collapsing. Only the first
// MaxHashedTextBytes bytes of the normalized text are hashed.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(norm.NFC.String(text)), " ")
	normalized = truncateUTF8(normalized, MaxHashedTextBytes)

	sum := blake2b.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
