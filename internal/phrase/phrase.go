// Package phrase generates, validates and parses recovery phrases of the
// form "<w1> <w2> <w3> <w4> <w5> <w6>-<pin>".
package phrase

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
)

const (
	// WordCount is the number of words in a recovery phrase.
	WordCount = 6
	// PINLength is the number of digits in the PIN.
	PINLength = 4
	// Separator joins the words and the PIN in the full text form.
	Separator = "-"
)

var (
	ErrWordListUnavailable = errors.New("phrase: word list unavailable")
	ErrInvalidWordCount    = fmt.Errorf("phrase: recovery phrase must have exactly %d words", WordCount)
	ErrInvalidPinFormat    = fmt.Errorf("phrase: PIN must be exactly %d digits", PINLength)
	// ErrInvalidWord never names the offending word or its position.
	ErrInvalidWord = errors.New("phrase: recovery phrase contains an unknown word")
	ErrParse       = errors.New("phrase: malformed recovery phrase")
)

// Phrase is a parsed recovery phrase. It should never be persisted.
type Phrase struct {
	Words []string
	PIN   string
}

// Text returns the space separated words.
func (p Phrase) Text() string {
	return strings.Join(p.Words, " ")
}

// String returns the canonical full text form.
func (p Phrase) String() string {
	return p.Text() + Separator + p.PIN
}

// Option configures a Codec.
type Option func(*Codec)

// WithFallback lets Generate use the fallback list when no dictionary is
// loaded.
func WithFallback() Option {
	return func(c *Codec) { c.fallback = Fallback() }
}

// WithRandom overrides the randomness source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) { c.rand = r }
}

// Codec works against a single dictionary. A nil dictionary models a word
// list resource that failed to load.
type Codec struct {
	dict     *Dictionary
	fallback *Dictionary
	rand     io.Reader
}

// NewCodec returns a codec backed by dict.
func NewCodec(dict *Dictionary, opts ...Option) *Codec {
	c := &Codec{dict: dict, rand: rand.Reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate draws WordCount independent uniform words, with replacement,
// and a zero padded PIN.
func (c *Codec) Generate() (Phrase, error) {
	dict := c.dict
	if dict == nil || dict.Len() == 0 {
		dict = c.fallback
	}
	if dict == nil || dict.Len() == 0 {
		return Phrase{}, ErrWordListUnavailable
	}

	words := make([]string, WordCount)
	for i := range words {
		n, err := c.uniform(int64(dict.Len()))
		if err != nil {
			return Phrase{}, err
		}
		words[i] = dict.Word(int(n))
	}

	n, err := c.uniform(10000)
	if err != nil {
		return Phrase{}, err
	}

	return Phrase{Words: words, PIN: fmt.Sprintf("%04d", n)}, nil
}

func (c *Codec) uniform(max int64) (int64, error) {
	n, err := rand.Int(c.rand, big.NewInt(max))
	if err != nil {
		return 0, fmt.Errorf("phrase: read randomness: %w", err)
	}
	return n.Int64(), nil
}

// Validate checks word count, then PIN format, then dictionary membership.
func (c *Codec) Validate(text, pin string) error {
	tokens := strings.Fields(text)
	if len(tokens) != WordCount {
		return ErrInvalidWordCount
	}
	if !isPIN(pin) {
		return ErrInvalidPinFormat
	}
	if c.dict == nil || c.dict.IsFallback() {
		return ErrWordListUnavailable
	}
	for _, tok := range tokens {
		if !c.dict.Contains(tok) {
			return ErrInvalidWord
		}
	}
	return nil
}

// Parse splits fullText on the last separator and validates both halves.
// It reports false on any malformed input.
func (c *Codec) Parse(fullText string) (Phrase, bool) {
	idx := strings.LastIndex(fullText, Separator)
	if idx < 0 {
		return Phrase{}, false
	}

	text := strings.TrimSpace(fullText[:idx])
	pin := strings.TrimSpace(fullText[idx+len(Separator):])
	if err := c.Validate(text, pin); err != nil {
		return Phrase{}, false
	}

	tokens := strings.Fields(text)
	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = strings.ToLower(tok)
	}
	return Phrase{Words: words, PIN: pin}, true
}

func isPIN(pin string) bool {
	if len(pin) != PINLength {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}
