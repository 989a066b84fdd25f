package bus

import (
	"reflect"
)

// Token is a single element in a topic path. Any comparable value works;
// in practice tokens are strings and small integers.
type Token = any

// Wildcard tokens, MQTT-style. "+" matches exactly one token, "#" matches
// zero or more trailing tokens.
const (
	TokenPlus = "+"
	TokenHash = "#"
)

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic from tokens, panicking if any token is not comparable.
// Composite literals (Topic{"a", "b"}) skip this check and fail later at
// the trie map instead, so prefer T for anything built from variables.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		if tok == nil || !reflect.TypeOf(tok).Comparable() {
			panic("bus: topic token must be a non-nil comparable value")
		}
	}
	return Topic(tokens)
}

func (t Topic) Len() int       { return len(t) }
func (t Topic) At(i int) Token { return t[i] }

// Append returns a new topic with extra tokens added. The receiver is not
// modified, so prefix topics can be shared and extended freely.
func (t Topic) Append(tokens ...Token) Topic {
	out := make(Topic, 0, len(t)+len(tokens))
	out = append(out, t...)
	out = append(out, tokens...)
	return out
}

// Equal reports whether two topics have identical tokens.
func (t Topic) Equal(other Topic) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}
