package pages

import (
	"crypto/rand"
	"strings"
)

// CodeAlphabet omits 0, 1, I and O, which are easily confused when read aloud
// or copied from a printed card.
const (
	CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength   = 8
)

// Generator draws fixed-length codes uniformly from an alphabet. Uniqueness is
// checked by the caller.
type Generator struct {
	alphabet string
	length   int
}

func NewGenerator(alphabet string, length int) *Generator {
	if alphabet == "" {
		alphabet = CodeAlphabet
	}
	if length <= 0 {
		length = CodeLength
	}
	return &Generator{alphabet: alphabet, length: length}
}

func (g *Generator) Next() string {
	n := len(g.alphabet)
	// bytes at or above limit would bias the modulo
	limit := 256 - 256%n

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%n])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out)
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
