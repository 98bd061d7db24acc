// Package wordlist answers membership queries against a banned-word
// list loaded from a newline-delimited file.
package wordlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Checker reports whether a candidate answer appears in a wordlist.
type Checker interface {
	ContainsWord(candidate string) bool
}

// List is an in-memory wordlist. Lookups are case-insensitive. The list
// is immutable after load and safe for concurrent use.
type List struct {
	words map[string]struct{}
}

// Load reads a newline-delimited wordlist file. Blank lines and lines
// starting with '#' are skipped.
func Load(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	words := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read wordlist: %w", err)
	}
	return &List{words: words}, nil
}

// New builds a List from the given words, for configuration-embedded
// lists and tests.
func New(words ...string) *List {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &List{words: m}
}

// ContainsWord reports whether candidate is in the list.
func (l *List) ContainsWord(candidate string) bool {
	if l == nil {
		return false
	}
	_, ok := l.words[strings.ToLower(strings.TrimSpace(candidate))]
	return ok
}

// Len returns the number of loaded words.
func (l *List) Len() int { return len(l.words) }
