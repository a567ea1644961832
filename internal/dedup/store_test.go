package dedup

import (
	"strings"
	"sync"
	"testing"
)

// TestStoreURLs tests URL membership.
func TestStoreURLs(t *testing.T) {
	t.Parallel()

	s := NewStore()

	if s.SeenURL("https://example.com/") {
		t.Error("empty store reports URL as seen")
	}
	if !s.MarkURL("https://example.com/") {
		t.Error("first MarkURL should return true")
	}
	if s.MarkURL("https://example.com/") {
		t.Error("second MarkURL should return false")
	}
	if !s.SeenURL("https://example.com/") {
		t.Error("marked URL not reported as seen")
	}
	if s.SeenURL("https://example.com/other") {
		t.Error("unmarked URL reported as seen")
	}
	if got := s.URLCount(); got != 1 {
		t.Errorf("URLCount() = %d, want 1", got)
	}
}

// TestStoreContent tests content hash membership, kept separate from URLs.
func TestStoreContent(t *testing.T) {
	t.Parallel()

	s := NewStore()
	h := ContentHash("hello world")

	if s.SeenContent(h) {
		t.Error("empty store reports content as seen")
	}
	if !s.MarkContent(h) {
		t.Error("first MarkContent should return true")
	}
	if s.MarkContent(h) {
		t.Error("second MarkContent should return false")
	}
	if !s.SeenContent(h) {
		t.Error("marked content not reported as seen")
	}
	if s.SeenURL(h) {
		t.Error("content hash leaked into URL set")
	}
}

// TestContentHash tests normalization before hashing.
func TestContentHash(t *testing.T) {
	t.Parallel()

	t.Run("whitespace is collapsed", func(t *testing.T) {
		t.Parallel()
		if ContentHash("hello   world\n") != ContentHash(" hello\tworld") {
			t.Error("whitespace variants hash differently")
		}
	})

	t.Run("unicode is NFC normalized", func(t *testing.T) {
		t.Parallel()
		composed := "caf\u00e9"
		decomposed := "cafe\u0301"
		if ContentHash(composed) != ContentHash(decomposed) {
			t.Error("NFC-equivalent texts hash differently")
		}
	})

	t.Run("different text differs", func(t *testing.T) {
		t.Parallel()
		if ContentHash("alpha") == ContentHash("beta") {
			t.Error("different texts hash the same")
		}
	})

	t.Run("hex encoded 256-bit digest", func(t *testing.T) {
		t.Parallel()
		if got := len(ContentHash("x")); got != 64 {
			t.Errorf("hash length = %d, want 64", got)
		}
	})

	t.Run("text beyond the limit is ignored", func(t *testing.T) {
		t.Parallel()
		base := strings.Repeat("a", MaxHashedTextBytes)
		if ContentHash(base+" tail one") != ContentHash(base+" tail two") {
			t.Error("text past the hashed prefix changed the hash")
		}
	})
}

// TestTruncateUTF8 tests rune-safe truncation.
func TestTruncateUTF8(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"h\u00e9llo", 2, "h"},
		{"h\u00e9llo", 3, "h\u00e9"},
	}

	for _, tt := range tests {
		if got := truncateUTF8(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateUTF8(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

// TestStoreConcurrentMark tests that exactly one caller wins a mark race.
func TestStoreConcurrentMark(t *testing.T) {
	t.Parallel()

	s := NewStore()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.MarkURL("https://example.com/race") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}
