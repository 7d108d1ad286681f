package challenge

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
)

const (
	MinA = 2
	MaxA = 10
	MinB = 2
	MaxB = 20
)

// Challenge is an addition puzzle posed to a joining member.
type Challenge struct {
	A      int
	B      int
	Answer int
}

type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator returns a generator drawing from src. A nil src uses the
// process-wide source.
func NewGenerator(src rand.Source) *Generator {
	g := &Generator{}
	if src != nil {
		g.rng = rand.New(src)
	}
	return g
}

func (g *Generator) NewChallenge() Challenge {
	a := MinA + g.intN(MaxA-MinA+1)
	b := MinB + g.intN(MaxB-MinB+1)

	return Challenge{A: a, B: b, Answer: a + b}
}

func (g *Generator) intN(n int) int {
	if g.rng == nil {
		return rand.IntN(n)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// ParseAnswer reads a reply as an integer. ok is false for anything that is
// not a base-10 integer fitting in an int, after trimming surrounding space.
func ParseAnswer(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Correct reports whether text is the exact expected answer.
func (c Challenge) Correct(text string) bool {
	n, ok := ParseAnswer(text)
	return ok && n == c.Answer
}
