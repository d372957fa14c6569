// Package naming implements the bijective mapping between numeric entry
// ids and the short names that appear in public URLs.
package naming

import "strings"

// DefaultAlphabet is the 64-symbol alphabet used for public names. The
// symbol order is load-bearing: names already issued decode against it.
const DefaultAlphabet = "DEQhd2uFteibPwq0SWBInTpA_jcZL5GKz3YCR14Ulk87Jors9vNHgfaOmMXy6Vx-"

// Codec encodes non-negative ids into alphabet-based strings and back.
// All alphabet symbols are URL path safe, so encoded names never need
// escaping.
type Codec struct {
	alphabet  string
	minLength int
	index     map[rune]int64
}

// NewCodec builds a codec over the given alphabet. Output shorter than
// minLength is left-padded with the alphabet's first symbol.
func NewCodec(alphabet string, minLength int) *Codec {
	idx := make(map[rune]int64, len(alphabet))
	for i, r := range alphabet {
		idx[r] = int64(i)
	}
	return &Codec{alphabet: alphabet, minLength: minLength, index: idx}
}

// Encode converts id into its public name.
func (c *Codec) Encode(id int64) string {
	n := int64(len(c.alphabet))
	var b strings.Builder
	for id > 0 {
		b.WriteByte(c.alphabet[id%n])
		id /= n
	}
	s := b.String()
	// digits were emitted least-significant first
	runes := []byte(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	s = string(runes)
	if pad := c.minLength - len(s); pad > 0 {
		s = strings.Repeat(string(c.alphabet[0]), pad) + s
	}
	return s
}

// Decode converts a public name back into an id. Decoding is strict: any
// rune outside the alphabet makes the whole input invalid and ok is
// false. Callers treat invalid names as "not found", never as an error.
func (c *Codec) Decode(s string) (id int64, ok bool) {
	if s == "" {
		return 0, false
	}
	n := int64(len(c.alphabet))
	for _, r := range s {
		v, found := c.index[r]
		if !found {
			return 0, false
		}
		id = id*n + v
	}
	return id, true
}
