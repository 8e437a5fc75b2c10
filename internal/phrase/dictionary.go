package phrase

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39/wordlists"
)

// DictionarySize is the number of words a full dictionary holds.
const DictionarySize = 2048

// fallbackStride picks every n-th BIP39 word for the fallback list.
const fallbackStride = 16

// Dictionary is an immutable word list with constant-time membership.
type Dictionary struct {
	words    []string
	index    map[string]struct{}
	fallback bool
}

// NewDictionary builds a full dictionary. Words are lowercased and trimmed;
// exactly DictionarySize unique words are required.
func NewDictionary(words []string) (*Dictionary, error) {
	d := newDictionary(words)
	if len(d.index) != len(d.words) {
		return nil, fmt.Errorf("phrase: dictionary has duplicate words")
	}
	if len(d.words) != DictionarySize {
		return nil, fmt.Errorf("phrase: dictionary has %d words, want %d", len(d.words), DictionarySize)
	}
	return d, nil
}

func newDictionary(words []string) *Dictionary {
	d := &Dictionary{
		words: make([]string, 0, len(words)),
		index: make(map[string]struct{}, len(words)),
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		d.words = append(d.words, w)
		d.index[w] = struct{}{}
	}
	return d
}

// LoadDictionary reads a newline separated word list resource.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	var words []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		words = append(words, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phrase: read dictionary: %w", err)
	}
	return NewDictionary(words)
}

var (
	bip39Once sync.Once
	bip39Dict *Dictionary

	fallbackOnce sync.Once
	fallbackDict *Dictionary
)

// BIP39 returns the English BIP39 dictionary.
func BIP39() *Dictionary {
	bip39Once.Do(func() {
		bip39Dict = newDictionary(wordlists.English)
	})
	return bip39Dict
}

// Fallback returns the reduced list used for degraded-mode generation.
// It is never accepted for validation.
func Fallback() *Dictionary {
	fallbackOnce.Do(func() {
		words := make([]string, 0, len(wordlists.English)/fallbackStride)
		for i := 0; i < len(wordlists.English); i += fallbackStride {
			words = append(words, wordlists.English[i])
		}
		fallbackDict = newDictionary(words)
		fallbackDict.fallback = true
	})
	return fallbackDict
}

// Len returns the number of words.
func (d *Dictionary) Len() int { return len(d.words) }

// Word returns the i-th word.
func (d *Dictionary) Word(i int) string { return d.words[i] }

// Contains reports whether w, lowercased and trimmed, is in the dictionary.
func (d *Dictionary) Contains(w string) bool {
	_, ok := d.index[strings.ToLower(strings.TrimSpace(w))]
	return ok
}

// IsFallback reports whether d is the degraded-mode list.
func (d *Dictionary) IsFallback() bool { return d.fallback }
