// Package charts defines the fixed catalog of dashboard charts.
package charts

import (
	"errors"
	"fmt"
	"strings"
)

// ID names one chart kind. The set of valid IDs is fixed at build time.
type ID string

const (
	WPMDistribution          ID = "wpm-distribution"
	PerformanceOverTime      ID = "performance-over-time"
	RollingAverage           ID = "rolling-average"
	RankDistribution         ID = "rank-distribution"
	HourlyPerformance        ID = "hourly-performance"
	AccuracyDistribution     ID = "accuracy-distribution"
	DailyPerformance         ID = "daily-performance"
	WPMVsAccuracy            ID = "wpm-vs-accuracy"
	WinRateMonthly           ID = "win-rate-monthly"
	TopTexts                 ID = "top-texts"
	ConsistencyScore         ID = "consistency-score"
	AccuracyByRank           ID = "accuracy-by-rank"
	CumulativeAccuracy       ID = "cumulative-accuracy"
	WPMByRankBoxplot         ID = "wpm-by-rank-boxplot"
	RacersImpact             ID = "racers-impact"
	FrequentTextsImprovement ID = "frequent-texts-improvement"
	TopTextsDistribution     ID = "top-texts-distribution"
	WinRateAfterWin          ID = "win-rate-after-win"
	FastestSlowestRaces      ID = "fastest-slowest-races"
	TimeBetweenRaces         ID = "time-between-races"
)

// ErrUnknownChart is returned by Parse for identifiers outside the catalog.
var ErrUnknownChart = errors.New("unknown chart")

// catalog is in display order, top of the page first.
var catalog = []ID{
	WPMDistribution,
	PerformanceOverTime,
	RollingAverage,
	RankDistribution,
	HourlyPerformance,
	AccuracyDistribution,
	DailyPerformance,
	WPMVsAccuracy,
	WinRateMonthly,
	TopTexts,
	ConsistencyScore,
	AccuracyByRank,
	CumulativeAccuracy,
	WPMByRankBoxplot,
	RacersImpact,
	FrequentTextsImprovement,
	TopTextsDistribution,
	WinRateAfterWin,
	FastestSlowestRaces,
	TimeBetweenRaces,
}

var known = func() map[ID]struct{} {
	m := make(map[ID]struct{}, len(catalog))
	for _, id := range catalog {
		m[id] = struct{}{}
	}
	return m
}()

// All returns the catalog in display order. The returned slice is a copy.
func All() []ID {
	out := make([]ID, len(catalog))
	copy(out, catalog)
	return out
}

// Valid reports whether id is part of the catalog.
func (id ID) Valid() bool {
	_, ok := known[id]
	return ok
}

func (id ID) String() string { return string(id) }

// Parse validates s against the catalog.
func Parse(s string) (ID, error) {
	id := ID(strings.TrimSpace(s))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChart, s)
	}
	return id, nil
}

// ParseList parses a comma separated list, skipping empty items.
func ParseList(s string) ([]ID, error) {
	var out []ID
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		id, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
