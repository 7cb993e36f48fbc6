package pe

import (
	"math"

	"golang.org/x/exp/constraints"
)

type EntropyCalculator struct {
	size        int
	frequencies [256]uint64
}

func (e *EntropyCalculator) Write(p []byte) (n int, err error) {
	e.size += len(p)
	for _, v := range p {
		e.frequencies[v]++
	}
	return len(p), err
}

func (e *EntropyCalculator) Sum() (entropy float64) {
	if e.size == 0 {
		return
	}

	for _, p := range e.frequencies {
		if p > 0 {
			freq := float64(p) / float64(e.size)
			entropy += freq * math.Log2(freq)
		}
	}
	return -entropy
}

// Entropy returns the Shannon entropy of data in bits per byte.
func Entropy(data []byte) float64 {
	var e EntropyCalculator
	_, _ = e.Write(data)
	return e.Sum()
}

// stringInSlice checks weather a string exists in a slice of strings.
func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

// alignUp rounds v up to a multiple of align. An align of zero leaves v as is.
func alignUp[T constraints.Unsigned](v, align T) T {
	if align == 0 {
		return v
	}
	if r := v % align; r != 0 {
		return v + (align - r)
	}
	return v
}

func isAligned[T constraints.Unsigned](v, align T) bool {
	return align == 0 || v%align == 0
}

func maxOf[T constraints.Ordered](x, y T) T {
	if x < y {
		return y
	}
	return x
}
