// Package balance spreads review load across calendar days.
package balance

// Leveler moves an interval to the least crowded day within a fuzz window
// around it. Short intervals are returned unchanged.
type Leveler struct {
	// MinDays is the shortest interval that is levelled.
	MinDays int
}

// New returns a Leveler that leaves intervals of a week or less alone.
func New() *Leveler {
	return &Leveler{MinDays: 8}
}

// Window returns the number of days an interval may move either way.
func Window(days int) int {
	switch {
	case days <= 7:
		return 0
	case days <= 21:
		return 1
	case days <= 180:
		return min(3, days*5/100)
	default:
		return min(7, days*25/1000+3)
	}
}

// Balance returns the day in [days-w, days+w] with the fewest due items.
// Ties go to the day closest to days, then to the earlier day.
func (l *Leveler) Balance(days int, histogram map[int]int) int {
	if days < l.MinDays || len(histogram) == 0 {
		return days
	}
	w := Window(days)
	best, bestLoad := days, histogram[days]
	for off := 1; off <= w; off++ {
		for _, d := range []int{days - off, days + off} {
			if d < 1 {
				continue
			}
			if load := histogram[d]; load < bestLoad {
				best, bestLoad = d, load
			}
		}
	}
	return best
}
