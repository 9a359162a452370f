package charts

const (
	// SlotHeight matches the fixed plot height the backend renders.
	SlotHeight = 400.0
	SlotGap    = 24.0
)

// Slot is the vertical placement of one chart container on the page.
type Slot struct {
	Chart  ID
	Top    float64
	Height float64
}

// Layout stacks ids top to bottom starting at offset.
func Layout(offset float64, ids ...ID) []Slot {
	slots := make([]Slot, 0, len(ids))
	top := offset
	for _, id := range ids {
		slots = append(slots, Slot{Chart: id, Top: top, Height: SlotHeight})
		top += SlotHeight + SlotGap
	}
	return slots
}
