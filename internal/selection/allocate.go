package selection

import (
	"fmt"
	"math"
)

// Allocate splits target across sources proportionally to their available
// counts. Rounding drift is corrected one unit at a time, round-robin, until
// the counts sum to target; no count goes below zero, and while the sources
// hold enough questions no count exceeds its source's availability.
func Allocate(available []int, target int) ([]int, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: negative target %d", ErrInvalidSpec, target)
	}
	total := 0
	for _, a := range available {
		if a < 0 {
			return nil, fmt.Errorf("%w: negative availability %d", ErrInvalidSpec, a)
		}
		total += a
	}
	if total == 0 {
		return nil, ErrEmptySelection
	}

	n := len(available)
	counts := make([]int, n)
	sum := 0
	for i, a := range available {
		counts[i] = int(math.Round(float64(a) / float64(total) * float64(target)))
		sum += counts[i]
	}

	capped := total >= target
	i := 0
	for sum < target {
		k := i % n
		if !capped || counts[k] < available[k] {
			counts[k]++
			sum++
		}
		i++
	}
	for sum > target {
		k := i % n
		if counts[k] > 0 {
			counts[k]--
			sum--
		}
		i++
	}
	return counts, nil
}
