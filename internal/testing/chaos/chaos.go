// Package chaos corrupts ERD documents for robustness tests.
//
// Byte-level mutations break the lexer; structural mutations keep the text
// lexable but swap sigils, drop keywords, unbalance parentheses and reorder
// lines, which is what reaches the parser, builder and generator.
package chaos

import (
	"bytes"
	"math/rand/v2"
	"slices"
)

// Mutation is one kind of corruption.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	Truncation
	InvalidUTF8
	SigilSwap
	KeywordDrop
	ParenUnbalance
	LineSwap
	LineDuplicate
	IndentStrip
	mutationCount
)

var mutationNames = [...]string{
	ByteFlip:       "byte-flip",
	ByteDelete:     "byte-delete",
	ByteInsert:     "byte-insert",
	Truncation:     "truncation",
	InvalidUTF8:    "invalid-utf8",
	SigilSwap:      "sigil-swap",
	KeywordDrop:    "keyword-drop",
	ParenUnbalance: "paren-unbalance",
	LineSwap:       "line-swap",
	LineDuplicate:  "line-duplicate",
	IndentStrip:    "indent-strip",
}

func (m Mutation) String() string {
	if m >= 0 && m < mutationCount {
		return mutationNames[m]
	}
	return "unknown"
}

// Mutations lists every mutation.
func Mutations() []Mutation {
	out := make([]Mutation, mutationCount)
	for i := range out {
		out[i] = Mutation(i)
	}
	return out
}

var (
	sigils   = []byte("$%@#:")
	keywords = [][]byte{
		[]byte("PK"), []byte("FK"), []byte("NOT"), []byte("NULL"), []byte("UNIQUE"),
		[]byte("DEFAULT"), []byte("CHECK"), []byte("ON"), []byte("AS"), []byte("enum"),
	}
)

// Corruptor applies seeded random mutations. It is not safe for concurrent
// use.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a Corruptor whose output is fixed by seed.
func NewCorruptor(seed uint64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Corrupt applies one random mutation. The input is never modified.
func (c *Corruptor) Corrupt(input []byte) []byte {
	return c.Apply(Mutation(c.rng.IntN(int(mutationCount))), input)
}

// CorruptN applies n random mutations in sequence.
func (c *Corruptor) CorruptN(input []byte, n int) []byte {
	out := bytes.Clone(input)
	for range n {
		out = c.Corrupt(out)
	}
	return out
}

// GenerateCorpus returns count corruptions of valid, each with one to five
// mutations.
func (c *Corruptor) GenerateCorpus(valid []byte, count int) [][]byte {
	corpus := make([][]byte, count)
	for i := range corpus {
		corpus[i] = c.CorruptN(valid, c.rng.IntN(5)+1)
	}
	return corpus
}

// Apply applies m to a copy of input. Mutations that find nothing to
// change return the copy unchanged.
func (c *Corruptor) Apply(m Mutation, input []byte) []byte {
	out := bytes.Clone(input)
	if len(out) == 0 {
		if m == ByteInsert {
			return c.byteInsert(out)
		}
		return out
	}
	switch m {
	case ByteFlip:
		for range c.rng.IntN(3) + 1 {
			out[c.rng.IntN(len(out))] ^= 1 << c.rng.IntN(8)
		}
		return out
	case ByteDelete:
		i := c.rng.IntN(len(out))
		return append(out[:i], out[i+1:]...)
	case ByteInsert:
		return c.byteInsert(out)
	case Truncation:
		return out[:c.rng.IntN(len(out))]
	case InvalidUTF8:
		out[c.rng.IntN(len(out))] = 0xC0 | byte(c.rng.IntN(0x20))
		return out
	case SigilSwap:
		return c.sigilSwap(out)
	case KeywordDrop:
		return c.keywordDrop(out)
	case ParenUnbalance:
		return c.parenUnbalance(out)
	case LineSwap:
		return c.lineSwap(out)
	case LineDuplicate:
		lines := bytes.SplitAfter(out, []byte("\n"))
		i := c.rng.IntN(len(lines))
		return bytes.Join(slices.Insert(lines, i, lines[i]), nil)
	case IndentStrip:
		lines := bytes.SplitAfter(out, []byte("\n"))
		i := c.rng.IntN(len(lines))
		lines[i] = bytes.TrimLeft(lines[i], " \t")
		return bytes.Join(lines, nil)
	default:
		return out
	}
}

func (c *Corruptor) byteInsert(in []byte) []byte {
	i := c.rng.IntN(len(in) + 1)
	b := byte(c.rng.IntN(256))
	return append(in[:i], append([]byte{b}, in[i:]...)...)
}

// sigilSwap replaces one sigil with another, or drops it.
func (c *Corruptor) sigilSwap(in []byte) []byte {
	at := indexesOf(in, func(b byte) bool { return bytes.IndexByte(sigils, b) >= 0 })
	if len(at) == 0 {
		return in
	}
	i := at[c.rng.IntN(len(at))]
	repl := c.rng.IntN(len(sigils) + 1)
	if repl == len(sigils) {
		return append(in[:i], in[i+1:]...)
	}
	in[i] = sigils[repl]
	return in
}

// keywordDrop removes one occurrence of a DSL keyword.
func (c *Corruptor) keywordDrop(in []byte) []byte {
	kw := keywords[c.rng.IntN(len(keywords))]
	var at []int
	for off := 0; ; {
		i := bytes.Index(in[off:], kw)
		if i < 0 {
			break
		}
		at = append(at, off+i)
		off += i + len(kw)
	}
	if len(at) == 0 {
		return in
	}
	i := at[c.rng.IntN(len(at))]
	return append(in[:i], in[i+len(kw):]...)
}

// parenUnbalance deletes one bracket or inserts a stray one.
func (c *Corruptor) parenUnbalance(in []byte) []byte {
	at := indexesOf(in, func(b byte) bool { return bytes.IndexByte([]byte("(){}[]"), b) >= 0 })
	if len(at) > 0 && c.rng.IntN(2) == 0 {
		i := at[c.rng.IntN(len(at))]
		return append(in[:i], in[i+1:]...)
	}
	i := c.rng.IntN(len(in) + 1)
	stray := []byte("(){")[c.rng.IntN(3)]
	return append(in[:i], append([]byte{stray}, in[i:]...)...)
}

func (c *Corruptor) lineSwap(in []byte) []byte {
	lines := bytes.SplitAfter(in, []byte("\n"))
	if len(lines) < 2 {
		return in
	}
	i, j := c.rng.IntN(len(lines)), c.rng.IntN(len(lines))
	lines[i], lines[j] = lines[j], lines[i]
	return bytes.Join(lines, nil)
}

func indexesOf(in []byte, match func(byte) bool) []int {
	var at []int
	for i, b := range in {
		if match(b) {
			at = append(at, i)
		}
	}
	return at
}
