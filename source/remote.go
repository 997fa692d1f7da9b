package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/jpalmerr/gpiolive"
	"github.com/jpalmerr/gpiolive/internal/poller"
)

// voltageKeys are the snapshot keys a board may report voltages under.
// Older firmware uses "adcv".
var voltageKeys = []string{"analog", "adcv"}

// RemoteConfig configures a [Remote].
type RemoteConfig struct {
	// BaseURL is the remote board, e.g. "http://192.168.4.1:8081". Required.
	BaseURL string

	// Channels maps the remote snapshot's labels back to channel ids.
	// Required.
	Channels []gpiolive.Channel

	// Timeout bounds each fetch. Defaults to 2s.
	Timeout time.Duration
}

// Remote is a [gpiolive.BatchSource] relaying another board's snapshot.
// One fetch of <base>/data serves every channel of a local snapshot.
type Remote struct {
	client  *poller.Client
	dataURL string
	infoURL string
	base    string
	labels  map[int]string
	timeout time.Duration
}

// NewRemote creates a [Remote].
//
// Returns an error if the base URL is not absolute http(s) or no channels
// are given.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote URL must be http or https, got %q", cfg.BaseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host, got %q", cfg.BaseURL)
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("remote source needs at least one channel")
	}

	labels := make(map[int]string, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		labels[ch.ID()] = ch.Label()
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	client := poller.NewClient(cfg.Timeout)
	return &Remote{
		client:  client,
		dataURL: base + "/data",
		infoURL: base + "/info",
		base:    base,
		labels:  labels,
		timeout: client.Timeout(),
	}, nil
}

// Sample implements [gpiolive.Source] with a single-channel fetch.
func (r *Remote) Sample(ctx context.Context, id int) (gpiolive.Sample, error) {
	samples, err := r.SampleAll(ctx, []int{id})
	if err != nil {
		return gpiolive.Sample{}, err
	}
	s, ok := samples[id]
	if !ok {
		return gpiolive.Sample{}, fmt.Errorf("%w: channel %d not reported by %s", gpiolive.ErrChannelRead, id, r.base)
	}
	return s, nil
}

// SampleAll implements [gpiolive.BatchSource].
//
// Channels the remote snapshot does not mention are left out of the result.
func (r *Remote) SampleAll(ctx context.Context, ids []int) (map[int]gpiolive.Sample, error) {
	body, err := r.client.Get(ctx, r.dataURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", gpiolive.ErrChannelRead, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: invalid snapshot from %s: %w", gpiolive.ErrChannelRead, r.dataURL, err)
	}

	out := make(map[int]gpiolive.Sample, len(ids))
	for _, id := range ids {
		label, ok := r.labels[id]
		if !ok {
			continue
		}

		var s gpiolive.Sample
		found := false
		if v, ok := lookupPath(doc, "levels", label); ok {
			found = true
			s.Digital = toLevel(v)
		}
		for _, key := range voltageKeys {
			if v, ok := lookupPath(doc, key, label); ok {
				found = true
				s.Voltage = toVoltage(v)
				break
			}
		}
		if found {
			out[id] = s
		}
	}
	return out, nil
}

// SystemInfo returns the remote board's /info document.
func (r *Remote) SystemInfo(ctx context.Context) (map[string]any, error) {
	body, err := r.client.Get(ctx, r.infoURL)
	if err != nil {
		return nil, err
	}
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("invalid info from %s: %w", r.infoURL, err)
	}
	if info == nil {
		info = make(map[string]any, 1)
	}
	info["remote"] = r.base
	info["remote_timeout_ms"] = r.Timeout().Milliseconds()
	return info, nil
}

// Timeout returns the per-fetch timeout.
func (r *Remote) Timeout() time.Duration {
	return r.timeout
}

// Close releases idle connections to the remote board.
func (r *Remote) Close() {
	r.client.Close()
}

// lookupPath walks nested JSON objects by key.
func lookupPath(data any, parts ...string) (any, bool) {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// toLevel accepts 0/1 numbers and booleans.
func toLevel(v any) *int {
	switch t := v.(type) {
	case float64:
		if t != 0 {
			return gpiolive.Int(1)
		}
		return gpiolive.Int(0)
	case bool:
		if t {
			return gpiolive.Int(1)
		}
		return gpiolive.Int(0)
	default:
		return nil
	}
}

func toVoltage(v any) *float64 {
	if f, ok := v.(float64); ok {
		return gpiolive.Float(f)
	}
	return nil
}
