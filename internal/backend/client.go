package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"racedash/internal/charts"
	"racedash/internal/metrics"
)

const (
	maxDatasetSize   = 64 * 1024 * 1024 // 64MB of CSV text
	maxErrorBodySize = 64 * 1024
)

// FetchChart requests one chart payload for dataset.
func (c *Client) FetchChart(ctx context.Context, chart charts.ID, dataset string) (*ChartPayload, error) {
	if !chart.Valid() {
		return nil, fmt.Errorf("backend: %w: %q", charts.ErrUnknownChart, chart)
	}

	var out ChartPayload
	if err := c.post(ctx, "fetch_chart", "/charts/"+string(chart), dataset, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchStats requests the headline statistics for dataset.
func (c *Client) FetchStats(ctx context.Context, dataset string) (*StatsPayload, error) {
	var out StatsPayload
	if err := c.post(ctx, "fetch_stats", "/stats", dataset, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health probes GET /health. Any non-2xx status is a ServerError.
func (c *Client) Health(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("backend: build health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError("health", url, c.cfg.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return serverErrorFromBody(resp.StatusCode, body)
	}
	return nil
}

func (c *Client) post(parentCtx context.Context, op, path, dataset string, out any) (err error) {
	start := time.Now()
	url := c.cfg.BaseURL + path

	defer func() {
		metrics.BackendRequestSeconds.
			WithLabelValues(path, outcome(err)).
			Observe(time.Since(start).Seconds())
	}()

	if len(dataset) > maxDatasetSize {
		return fmt.Errorf("backend: dataset too large (%d bytes, max %d)", len(dataset), maxDatasetSize)
	}

	bodyBytes, err := json.Marshal(datasetRequest{CSVData: dataset})
	if err != nil {
		return fmt.Errorf("backend: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("backend: build HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("backend request starting",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("dataset_bytes", len(dataset)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = classifyTransportError(op, url, c.cfg.Timeout, err)
		c.logger.Warn("backend request failed",
			zap.String("op", op),
			zap.String("path", path),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		serr := serverErrorFromBody(resp.StatusCode, body)
		c.logger.Warn("backend returned error status",
			zap.String("op", op),
			zap.String("path", path),
			zap.Int("status", serr.Status),
			zap.String("detail", truncate(serr.Detail, 200)),
		)
		return serr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if cerr := classifyTransportError(op, url, c.cfg.Timeout, err); IsTimeout(cerr) || errors.Is(cerr, context.Canceled) {
			return cerr
		}
		return fmt.Errorf("backend: decode %s response: %w", op, err)
	}

	c.logger.Debug("backend request completed",
		zap.String("op", op),
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		serr *ServerError
		nerr *NetworkError
	)
	switch {
	case errors.As(err, &serr):
		return "server_error"
	case IsTimeout(err):
		return "timeout"
	case errors.As(err, &nerr):
		return "network_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
