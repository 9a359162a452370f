package coordinator

import (
	"fmt"

	"racedash/internal/backend"
	"racedash/internal/charts"
)

// Status is the load lifecycle of one mounted chart.
type Status int

const (
	NotTriggered Status = iota
	Loading
	Ready
	Failed
)

func (s Status) String() string {
	switch s {
	case NotTriggered:
		return "not_triggered"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{NotTriggered, Loading, Ready, Failed} {
		if string(b) == c.String() {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("coordinator: unknown status %q", b)
}

// State is a snapshot of a coordinator. Payload is set only when Ready and
// Message only when Failed.
type State struct {
	Chart   charts.ID
	Status  Status
	Payload *backend.ChartPayload
	Message string
}
