// Package position computes sort keys for lists within a board and cards
// within a list. Keys are float64 so an item can be placed between two
// siblings without renumbering the others.
package position

import "sort"

// Baseline is the key given to the first item in an empty container.
const Baseline = 0.0

// Step separates an appended item from the current last one.
const Step = 1.0

// Next returns a key strictly greater than every key in existing.
func Next(existing []float64) float64 {
	if len(existing) == 0 {
		return Baseline
	}
	highest := existing[0]
	for _, p := range existing[1:] {
		if p > highest {
			highest = p
		}
	}
	return highest + Step
}

// Between returns a key strictly between lo and hi. A nil bound is open:
// Between(nil, nil) is Baseline, Between(nil, hi) is hi-Step and
// Between(lo, nil) is lo+Step.
func Between(lo, hi *float64) float64 {
	switch {
	case lo == nil && hi == nil:
		return Baseline
	case lo == nil:
		return *hi - Step
	case hi == nil:
		return *lo + Step
	default:
		return *lo + (*hi-*lo)/2
	}
}

// ForIndex returns the key that places an item at index among siblings,
// which must not include the item itself. Indexes past either end clamp.
func ForIndex(siblings []float64, index int) float64 {
	sorted := append([]float64(nil), siblings...)
	sort.Float64s(sorted)

	if index <= 0 {
		if len(sorted) == 0 {
			return Baseline
		}
		return Between(nil, &sorted[0])
	}
	if index >= len(sorted) {
		if len(sorted) == 0 {
			return Baseline
		}
		return Between(&sorted[len(sorted)-1], nil)
	}
	return Between(&sorted[index-1], &sorted[index])
}

// Target describes where an item should land. Explicit wins over Index; when
// neither is set the item goes to the end.
type Target struct {
	Explicit *float64
	Index    *int
}

// Reposition resolves target against siblings (excluding the moving item).
func Reposition(siblings []float64, target Target) float64 {
	key, _ := Resolve(siblings, target)
	return key
}

// Resolve is Reposition that also reports whether the key sorts strictly
// between the neighbours it lands next to. Repeated splits of the same gap
// eventually exhaust float64 precision; when ok is false the siblings should
// be renumbered with Spread and the target resolved again. Explicit keys are
// taken as given and always ok.
func Resolve(siblings []float64, target Target) (key float64, ok bool) {
	if target.Explicit != nil {
		return *target.Explicit, true
	}
	sorted := append([]float64(nil), siblings...)
	sort.Float64s(sorted)

	index := len(sorted)
	if target.Index != nil {
		index = min(max(*target.Index, 0), len(sorted))
		key = ForIndex(sorted, index)
	} else {
		key = Next(sorted)
	}
	if index > 0 && key <= sorted[index-1] {
		return key, false
	}
	if index < len(sorted) && key >= sorted[index] {
		return key, false
	}
	return key, true
}

// Spread returns n evenly spaced keys starting at Baseline.
func Spread(n int) []float64 {
	keys := make([]float64, n)
	for i := range keys {
		keys[i] = Baseline + float64(i)*Step
	}
	return keys
}
