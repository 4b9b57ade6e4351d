package selection

import "slices"

// WindowDays lists the accepted window lengths.
var WindowDays = []int{1, 2, 3, 5, 7, 14, 30}

// DefaultWindowDays replaces any window length outside WindowDays.
const DefaultWindowDays = 7

const (
	smallBudget  = 20
	mediumBudget = 30
	largeBudget  = 40

	// overFetchFactor sizes the candidate fetch relative to the budget so the
	// later stages have material to redistribute from.
	overFetchFactor = 3

	sourceCapPercent = 20
)

// ValidWindow reports whether days is in the allow-list.
func ValidWindow(days int) bool {
	return slices.Contains(WindowDays, days)
}

// Budget returns the maximum number of chunks selected for a window.
func Budget(days int) int {
	switch {
	case days <= 3:
		return smallBudget
	case days <= 7:
		return mediumBudget
	default:
		return largeBudget
	}
}

// PerSourceCap returns how many chunks a single source may contribute:
// one fifth of the budget, rounded up, never below one.
func PerSourceCap(days int) int {
	b := Budget(days)
	c := (b*sourceCapPercent + 99) / 100
	if c < 1 {
		return 1
	}
	return c
}

func overFetch(budget int) int {
	return budget * overFetchFactor
}
