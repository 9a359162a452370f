package charts

// DefaultPriority holds the above-the-fold charts that load at mount time.
var DefaultPriority = []ID{
	WPMDistribution,
	PerformanceOverTime,
	RollingAverage,
}

// PrioritySet is a read-only membership test for charts that bypass
// visibility gating. The zero value is an empty set.
type PrioritySet struct {
	members map[ID]struct{}
}

// NewPrioritySet builds a set from ids. Unknown ids are kept; callers
// validate with Parse beforehand.
func NewPrioritySet(ids ...ID) PrioritySet {
	m := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return PrioritySet{members: m}
}

// Contains reports whether id is a priority chart.
func (p PrioritySet) Contains(id ID) bool {
	_, ok := p.members[id]
	return ok
}

// Len returns the number of members.
func (p PrioritySet) Len() int { return len(p.members) }
