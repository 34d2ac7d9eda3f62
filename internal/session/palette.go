package session

import (
	"math/rand/v2"
	"sync"
)

// DefaultPalette is used when no colors are configured.
var DefaultPalette = []string{
	"#E6194B", "#3CB44B", "#FFE119", "#4363D8",
	"#F58231", "#911EB4", "#42D4F4", "#F032E6",
	"#BFEF45", "#FABED4", "#469990", "#DCBEFF",
}

// Palette picks user colors at random from a fixed set.
type Palette struct {
	mu     sync.Mutex
	colors []string
	rng    *rand.Rand
}

// NewPalette copies colors, falling back to DefaultPalette when empty.
func NewPalette(colors []string, seed uint64) *Palette {
	if len(colors) == 0 {
		colors = DefaultPalette
	}
	return &Palette{
		colors: append([]string(nil), colors...),
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Pick returns one color.
func (p *Palette) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.colors[p.rng.IntN(len(p.colors))]
}

// Colors returns a copy of the palette.
func (p *Palette) Colors() []string {
	return append([]string(nil), p.colors...)
}
