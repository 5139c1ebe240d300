package somnia

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// HTTPDoer is the minimal HTTP client interface, satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RemoteWriter pushes run metrics to a Prometheus remote-write endpoint.
// Pushes are best effort with bounded retries; a failed push is counted and
// otherwise ignored by the caller.
type RemoteWriter struct {
	config  MetricsConfig
	client  HTTPDoer
	retryer *Retryer

	pushes   atomic.Uint64
	failures atomic.Uint64
}

// NewRemoteWriter creates a writer for the given metrics configuration.
func NewRemoteWriter(config MetricsConfig) *RemoteWriter {
	if config.Job == "" {
		config.Job = "somnia"
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &RemoteWriter{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		retryer: NewRetryer(RetryConfig{
			MaxAttempts: config.MaxAttempts,
			RetryIf:     IsRetryable,
		}),
	}
}

// SetClient replaces the HTTP client. Intended for tests.
func (w *RemoteWriter) SetClient(client HTTPDoer) {
	w.client = client
}

// RemoteWriterStats holds lifetime push counters.
type RemoteWriterStats struct {
	Pushes   uint64 `json:"pushes"`
	Failures uint64 `json:"failures"`
}

// Stats returns lifetime push counters.
func (w *RemoteWriter) Stats() RemoteWriterStats {
	return RemoteWriterStats{
		Pushes:   w.pushes.Load(),
		Failures: w.failures.Load(),
	}
}

// PushRun publishes one run's statistics as remote-write samples, all sharing
// the run's completion timestamp and a run_id label.
func (w *RemoteWriter) PushRun(ctx context.Context, result *RunResult) error {
	now := time.Now().UnixMilli()

	samples := []struct {
		name  string
		value float64
	}{
		{"somnia_run_duration_seconds", result.Duration.Seconds()},
		{"somnia_rows_merged", float64(result.Stats.Merge.MergedRows)},
		{"somnia_rows_final", float64(result.Stats.Finalize.RowsOut)},
		{"somnia_rows_dropped", float64(result.Stats.Finalize.RowsDropped)},
		{"somnia_users_dropped", float64(len(result.Stats.Finalize.DroppedUsers))},
		{"somnia_quality_warnings", float64(len(result.Stats.Warnings))},
	}

	req := prompb.WriteRequest{Timeseries: make([]prompb.TimeSeries, 0, len(samples))}
	for _, s := range samples {
		req.Timeseries = append(req.Timeseries, prompb.TimeSeries{
			Labels: []prompb.Label{
				{Name: "__name__", Value: s.name},
				{Name: "job", Value: w.config.Job},
				{Name: "run_id", Value: result.RunID},
			},
			Samples: []prompb.Sample{{Value: s.value, Timestamp: now}},
		})
	}

	raw, err := req.Marshal()
	if err != nil {
		w.failures.Add(1)
		return fmt.Errorf("marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	res := w.retryer.Do(ctx, func() error {
		return w.post(ctx, compressed)
	})
	if res.LastErr != nil {
		w.failures.Add(1)
		return res.LastErr
	}
	w.pushes.Add(1)
	return nil
}

func (w *RemoteWriter) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("remote write returned %d", resp.StatusCode)
	}
	return nil
}
