package scanner

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxPartialSize caps the unterminated tail kept in reassembly mode
const DefaultMaxPartialSize = 8192

// Tokenizer splits chunks into barcode values on a separator set.
//
// By default every chunk is split on its own, so a value whose terminator
// arrives in a later chunk is emitted as two values. With reassembly enabled
// the text after the last separator is carried into the next chunk instead.
// A Tokenizer is not safe for concurrent use; the drainer owns it.
type Tokenizer struct {
	separators map[rune]struct{}
	reassemble bool
	maxPartial int
	partial    strings.Builder
	overflows  int
}

// NewTokenizer creates a tokenizer. A non-positive maxPartial selects
// DefaultMaxPartialSize.
func NewTokenizer(separators []rune, reassemble bool, maxPartial int) *Tokenizer {
	set := make(map[rune]struct{}, len(separators))
	for _, r := range separators {
		set[r] = struct{}{}
	}
	if maxPartial <= 0 {
		maxPartial = DefaultMaxPartialSize
	}
	return &Tokenizer{
		separators: set,
		reassemble: reassemble,
		maxPartial: maxPartial,
	}
}

func (t *Tokenizer) isSeparator(r rune) bool {
	_, ok := t.separators[r]
	return ok
}

// Split returns the non-empty tokens of a single chunk, left to right
func (t *Tokenizer) Split(chunk string) []string {
	return strings.FieldsFunc(chunk, t.isSeparator)
}

// Tokenize splits chunks in order and calls emit once per token
func (t *Tokenizer) Tokenize(chunks []string, emit func(token string)) {
	for _, chunk := range chunks {
		if !t.reassemble {
			for _, token := range t.Split(chunk) {
				emit(token)
			}
			continue
		}
		t.feed(chunk, emit)
	}
}

func (t *Tokenizer) feed(chunk string, emit func(token string)) {
	last := strings.LastIndexFunc(chunk, t.isSeparator)
	if last < 0 {
		t.carry(chunk)
		return
	}

	_, width := utf8.DecodeRuneInString(chunk[last:])

	head := chunk[:last]
	if t.partial.Len() > 0 {
		head = t.partial.String() + head
		t.partial.Reset()
	}
	for _, token := range t.Split(head) {
		emit(token)
	}
	t.carry(chunk[last+width:])
}

func (t *Tokenizer) carry(text string) {
	if text == "" {
		return
	}
	if t.partial.Len()+len(text) > t.maxPartial {
		t.partial.Reset()
		t.overflows++
		return
	}
	t.partial.WriteString(text)
}

// Flush returns and clears the unterminated remainder, if any
func (t *Tokenizer) Flush() (string, bool) {
	if t.partial.Len() == 0 {
		return "", false
	}
	rest := t.partial.String()
	t.partial.Reset()
	return rest, true
}

// Partial returns the length of the carried remainder in bytes
func (t *Tokenizer) Partial() int {
	return t.partial.Len()
}

// TakeOverflows returns and resets the number of discarded remainders
func (t *Tokenizer) TakeOverflows() int {
	n := t.overflows
	t.overflows = 0
	return n
}
