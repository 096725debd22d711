// Package dictionary looks recognized text up in a term list loaded from a
// tab-separated file: term, reading, definition per line.
package dictionary

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"screen-lookup/src/messages"
)

const (
	MaxTokens          = 10
	MaxEntriesPerToken = 5
)

// Dictionary maps normalized terms to their entries.
type Dictionary struct {
	entries map[string][]messages.Entry
	maxLen  int // longest key, in runes
}

// New returns an empty dictionary.
func New() *Dictionary {
	return &Dictionary{entries: make(map[string][]messages.Entry)}
}

// Load reads a dictionary file. A missing path yields an empty dictionary.
func Load(path string) (*Dictionary, error) {
	if path == "" {
		return New(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads TSV lines. Blank lines and lines starting with # are skipped.
func Parse(r io.Reader) (*Dictionary, error) {
	d := New()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		cols := strings.Split(text, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("dictionary line %d: want term<TAB>reading<TAB>definition", line)
		}
		e := messages.Entry{Term: strings.TrimSpace(cols[0])}
		if len(cols) == 2 {
			e.Definition = strings.TrimSpace(cols[1])
		} else {
			e.Reading = strings.TrimSpace(cols[1])
			e.Definition = strings.TrimSpace(strings.Join(cols[2:], " "))
		}
		d.Add(e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return d, nil
}

// Add inserts e under its normalized term.
func (d *Dictionary) Add(e messages.Entry) {
	key := Normalize(e.Term)
	if key == "" {
		return
	}
	d.entries[key] = append(d.entries[key], e)
	if n := utf8.RuneCountInString(key); n > d.maxLen {
		d.maxLen = n
	}
}

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int { return len(d.entries) }

// Lookup tokenizes text greedily by longest known prefix and returns the
// entries of up to MaxTokens matched tokens, MaxEntriesPerToken each.
func (d *Dictionary) Lookup(text string) []messages.Entry {
	runes := []rune(Normalize(text))
	var out []messages.Entry
	tokens := 0
	for i := 0; i < len(runes) && tokens < MaxTokens; {
		if isSeparator(runes[i]) {
			i++
			continue
		}
		n, hits := d.longestPrefix(runes[i:])
		if n == 0 {
			i++
			continue
		}
		if len(hits) > MaxEntriesPerToken {
			hits = hits[:MaxEntriesPerToken]
		}
		out = append(out, hits...)
		tokens++
		i += n
	}
	return out
}

func (d *Dictionary) longestPrefix(runes []rune) (int, []messages.Entry) {
	limit := d.maxLen
	if limit > len(runes) {
		limit = len(runes)
	}
	for n := limit; n > 0; n-- {
		if hits, ok := d.entries[string(runes[:n])]; ok {
			return n, hits
		}
	}
	return 0, nil
}

// Normalize trims, folds full/half-width forms and lowercases.
func Normalize(s string) string {
	return strings.ToLower(width.Fold.String(strings.TrimSpace(s)))
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '、', '。', ',', '.', '!', '?', '「', '」':
		return true
	}
	return false
}
