package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"racedash/internal/charts"
)

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error for empty BaseURL, got nil")
	}
	if _, err := NewClient(Config{BaseURL: "localhost:8000"}, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected validation error for schemeless BaseURL, got nil")
	}
}

func TestWithDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{BaseURL: " http://backend:8000/// "}.withDefaults()
	if cfg.BaseURL != "http://backend:8000" {
		t.Fatalf("trailing slashes not trimmed: %q", cfg.BaseURL)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Fatalf("expected default timeout of %s, got %s", DefaultTimeout, cfg.Timeout)
	}
	if cfg.MaxIdleConns != 100 || cfg.MaxIdleConnsPerHost != 100 {
		t.Fatalf("expected idle pool of 100, got %d/%d", cfg.MaxIdleConns, cfg.MaxIdleConnsPerHost)
	}
}

func TestFetchChartSuccess(t *testing.T) {
	t.Parallel()

	var gotReq datasetRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charts/wpm-distribution" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"data": [{"type":"histogram","x":[80,90,100]}],
			"layout": {"height": 400},
			"insights": ["You are fast"],
			"has_insights": true
		}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	payload, err := client.FetchChart(context.Background(), charts.WPMDistribution, "Race #,WPM\n1,90\n")
	if err != nil {
		t.Fatalf("FetchChart: %v", err)
	}

	if gotReq.CSVData != "Race #,WPM\n1,90\n" {
		t.Fatalf("dataset not sent verbatim: %q", gotReq.CSVData)
	}
	if len(payload.Data) != 1 || !strings.Contains(string(payload.Data[0]), "histogram") {
		t.Fatalf("unexpected data: %s", payload.Data)
	}
	if !payload.HasInsights || len(payload.Insights) != 1 || payload.Insights[0] != "You are fast" {
		t.Fatalf("insights not mapped: %#v", payload)
	}
}

func TestFetchStatsSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stats" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"total_races":12,"avg_wpm":88.5,"best_wpm":120,"total_wins":3,
			"avg_accuracy":0.97,"date_range":{"start":"2024-01-01","end":"2024-02-01"}}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	stats, err := client.FetchStats(context.Background(), "csv")
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	if stats.TotalRaces != 12 || stats.BestWPM != 120 || stats.DateRange.End != "2024-02-01" {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestFetchChartServerErrorDetail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":"bad csv"}`)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchChart(context.Background(), charts.TopTexts, "csv")
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if serr.Status != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", serr.Status)
	}
	if got := DisplayMessage(err); got != "bad csv" {
		t.Fatalf("expected display message %q, got %q", "bad csv", got)
	}
}

func TestFetchChartServerErrorWithoutDetail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>oops</html>")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchChart(context.Background(), charts.TopTexts, "csv")
	var serr *ServerError
	if !errors.As(err, &serr) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if !strings.Contains(serr.Detail, "502") {
		t.Fatalf("expected generic detail mentioning the status, got %q", serr.Detail)
	}
}

func TestFetchChartTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchChart(context.Background(), charts.TopTexts, "csv")
	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
	if terr.Timeout != 50*time.Millisecond {
		t.Fatalf("unexpected timeout recorded: %s", terr.Timeout)
	}
	if DisplayMessage(err) != GenericFailureMessage {
		t.Fatalf("timeouts should use the generic message")
	}
}

func TestFetchChartNetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := NewClient(Config{BaseURL: url}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchChart(context.Background(), charts.TopTexts, "csv")
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestFetchChartCallerCancel(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer srv.Close()
	defer close(done)

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = client.FetchChart(ctx, charts.TopTexts, "csv")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchChartUnknownChart(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("server should not be called for unknown chart")
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.FetchChart(context.Background(), charts.ID("nope"), "csv")
	if !errors.Is(err, charts.ErrUnknownChart) {
		t.Fatalf("expected ErrUnknownChart, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || r.Method != http.MethodGet {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if err := client.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}

	unhealthy.Store(true)
	var serr *ServerError
	if err := client.Health(context.Background()); !errors.As(err, &serr) || serr.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 ServerError, got %v", err)
	}
}

func TestConcurrentDashboardLoadsDoNotQueue(t *testing.T) {
	t.Parallel()

	const delay = 300 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"layout":{},"insights":[],"has_insights":false}`))
	}))
	defer srv.Close()

	// Four sessions loading the whole catalog at once need far more
	// connections than one dashboard does.
	client, err := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	const sessions = 4
	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < sessions; i++ {
		for _, id := range charts.All() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := client.FetchChart(context.Background(), id, "csv"); err != nil {
					failed.Add(1)
				}
			}()
		}
	}
	wg.Wait()

	if n := failed.Load(); n != 0 {
		t.Fatalf("%d of %d requests failed", n, sessions*len(charts.All()))
	}
}
