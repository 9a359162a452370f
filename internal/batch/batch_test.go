package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"racedash/internal/backend"
	"racedash/internal/charts"
)

type fetchFunc func(ctx context.Context, chart charts.ID, dataset string) (*backend.ChartPayload, error)

func (f fetchFunc) FetchChart(ctx context.Context, chart charts.ID, dataset string) (*backend.ChartPayload, error) {
	return f(ctx, chart, dataset)
}

func okPayload(chart charts.ID) *backend.ChartPayload {
	return &backend.ChartPayload{Insights: []string{string(chart)}}
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	f := fetchFunc(func(_ context.Context, chart charts.ID, _ string) (*backend.ChartPayload, error) {
		if chart == charts.RollingAverage {
			return nil, &backend.ServerError{Status: 500, Detail: "boom"}
		}
		return okPayload(chart), nil
	})
	o := New(f, WithLogger(zaptest.NewLogger(t)))

	got := o.FetchAll(context.Background(), []charts.ID{
		charts.WPMDistribution, charts.RollingAverage, charts.TopTexts,
	}, "csv")

	if len(got) != 2 {
		t.Fatalf("expected 2 successes, got %d: %v", len(got), got)
	}
	if _, ok := got[charts.RollingAverage]; ok {
		t.Fatalf("failed chart must be absent")
	}
	for _, id := range []charts.ID{charts.WPMDistribution, charts.TopTexts} {
		p, ok := got[id]
		if !ok || p.Insights[0] != string(id) {
			t.Fatalf("missing or wrong payload for %s: %#v", id, p)
		}
	}
}

func TestFetchAllRunsConcurrently(t *testing.T) {
	ids := []charts.ID{charts.WPMDistribution, charts.RankDistribution, charts.TopTexts, charts.RacersImpact}

	// Each fetch waits until all of them have started; a sequential
	// orchestrator would time out here.
	var arrived sync.WaitGroup
	arrived.Add(len(ids))
	all := make(chan struct{})
	go func() { arrived.Wait(); close(all) }()

	f := fetchFunc(func(_ context.Context, chart charts.ID, _ string) (*backend.ChartPayload, error) {
		arrived.Done()
		select {
		case <-all:
			return okPayload(chart), nil
		case <-time.After(2 * time.Second):
			return nil, errors.New("fetches did not overlap")
		}
	})

	got := New(f).FetchAll(context.Background(), ids, "csv")
	if len(got) != len(ids) {
		t.Fatalf("expected %d payloads, got %d", len(ids), len(got))
	}
}

func TestFetchAllRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := fetchFunc(func(_ context.Context, chart charts.ID, _ string) (*backend.ChartPayload, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return okPayload(chart), nil
	})

	got := New(f, WithConcurrency(2)).FetchAll(context.Background(), charts.All(), "csv")
	if len(got) != len(charts.All()) {
		t.Fatalf("expected every chart, got %d", len(got))
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d exceeds limit 2", p)
	}
}

func TestFetchAllDeduplicates(t *testing.T) {
	var calls atomic.Int32
	f := fetchFunc(func(_ context.Context, chart charts.ID, _ string) (*backend.ChartPayload, error) {
		calls.Add(1)
		return okPayload(chart), nil
	})

	got := New(f).FetchAll(context.Background(), []charts.ID{charts.TopTexts, charts.TopTexts}, "csv")
	if len(got) != 1 {
		t.Fatalf("expected one entry, got %d", len(got))
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one request, got %d", n)
	}
}

func TestFetchAllEmpty(t *testing.T) {
	f := fetchFunc(func(context.Context, charts.ID, string) (*backend.ChartPayload, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	if got := New(f).FetchAll(context.Background(), nil, "csv"); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestFetchAllDetailedReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	f := fetchFunc(func(_ context.Context, chart charts.ID, _ string) (*backend.ChartPayload, error) {
		if chart == charts.TopTexts {
			return nil, boom
		}
		return okPayload(chart), nil
	})

	got := New(f).FetchAllDetailed(context.Background(), []charts.ID{charts.TopTexts, charts.WinRateMonthly}, "csv")
	if len(got) != 2 {
		t.Fatalf("expected an entry per chart, got %d", len(got))
	}
	if r := got[charts.TopTexts]; !errors.Is(r.Err, boom) || r.Payload != nil {
		t.Fatalf("unexpected failed result %#v", r)
	}
	if r := got[charts.WinRateMonthly]; r.Err != nil || r.Payload == nil {
		t.Fatalf("unexpected success result %#v", r)
	}
}
