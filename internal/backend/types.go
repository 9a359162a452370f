package backend

import (
	"context"
	"encoding/json"

	"racedash/internal/charts"
)

// ChartPayload is the backend's rendering of one chart. Series and layout
// are passed through verbatim for the presentation layer.
type ChartPayload struct {
	Data        []json.RawMessage `json:"data"`
	Layout      json.RawMessage   `json:"layout"`
	Insights    []string          `json:"insights"`
	HasInsights bool              `json:"has_insights"`
}

// Clone returns a deep copy so holders cannot alias each other's buffers.
func (p ChartPayload) Clone() ChartPayload {
	out := ChartPayload{HasInsights: p.HasInsights}
	if p.Data != nil {
		out.Data = make([]json.RawMessage, len(p.Data))
		for i, d := range p.Data {
			out.Data[i] = append(json.RawMessage(nil), d...)
		}
	}
	if p.Layout != nil {
		out.Layout = append(json.RawMessage(nil), p.Layout...)
	}
	if p.Insights != nil {
		out.Insights = append([]string(nil), p.Insights...)
	}
	return out
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StatsPayload holds the headline numbers shown above the charts.
type StatsPayload struct {
	TotalRaces  int       `json:"total_races"`
	AvgWPM      float64   `json:"avg_wpm"`
	BestWPM     float64   `json:"best_wpm"`
	TotalWins   int       `json:"total_wins"`
	AvgAccuracy float64   `json:"avg_accuracy"`
	DateRange   DateRange `json:"date_range"`
}

// Fetcher turns a chart and dataset into one backend round trip.
type Fetcher interface {
	FetchChart(ctx context.Context, chart charts.ID, dataset string) (*ChartPayload, error)
}

// StatsFetcher is the companion call for headline statistics.
type StatsFetcher interface {
	FetchStats(ctx context.Context, dataset string) (*StatsPayload, error)
}

// Backend is everything a dashboard session needs from the backend.
type Backend interface {
	Fetcher
	StatsFetcher
}

var _ Backend = (*Client)(nil)
