package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/gpiolive"
)

func remoteChannels() []gpiolive.Channel {
	return []gpiolive.Channel{
		gpiolive.MustChannel(1, gpiolive.WithLabel("D0"), gpiolive.WithAnalog()),
		gpiolive.MustChannel(2, gpiolive.WithLabel("D1"), gpiolive.WithAnalog()),
		gpiolive.MustChannel(43, gpiolive.WithLabel("D6")),
	}
}

func serveJSON(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func newTestRemote(t *testing.T, baseURL string) *Remote {
	t.Helper()
	r, err := NewRemote(RemoteConfig{BaseURL: baseURL, Channels: remoteChannels(), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRemote_SampleAll(t *testing.T) {
	ts, hits := serveJSON(t, map[string]string{
		"/data": `{"levels":{"D0":1,"D1":0,"D6":1},"analog":{"D0":3.3,"D1":null,"D6":null},"heap":1000}`,
	})
	r := newTestRemote(t, ts.URL)

	got, err := r.SampleAll(context.Background(), []int{1, 2, 43})
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "one fetch serves every channel")

	require.Contains(t, got, 1)
	assert.Equal(t, 1, *got[1].Digital)
	assert.InDelta(t, 3.3, *got[1].Voltage, 1e-9)

	require.Contains(t, got, 2)
	assert.Equal(t, 0, *got[2].Digital)
	assert.Nil(t, got[2].Voltage)

	require.Contains(t, got, 43)
	assert.Equal(t, 1, *got[43].Digital)
}

func TestRemote_LegacyVoltageKey(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{
		"/data": `{"levels":{"D0":true},"adcv":{"D0":1.25},"heap":42}`,
	})
	r := newTestRemote(t, ts.URL)

	s, err := r.Sample(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, *s.Digital)
	require.NotNil(t, s.Voltage)
	assert.InDelta(t, 1.25, *s.Voltage, 1e-9)
}

func TestRemote_MissingChannel(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{
		"/data": `{"levels":{"D0":1},"analog":{"D0":0.5}}`,
	})
	r := newTestRemote(t, ts.URL)

	got, err := r.SampleAll(context.Background(), []int{1, 2})
	require.NoError(t, err)
	assert.Contains(t, got, 1)
	assert.NotContains(t, got, 2)

	_, err = r.Sample(context.Background(), 2)
	assert.ErrorIs(t, err, gpiolive.ErrChannelRead)
}

func TestRemote_UnknownIDIgnored(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{"/data": `{"levels":{"D0":1}}`})
	r := newTestRemote(t, ts.URL)

	got, err := r.SampleAll(context.Background(), []int{99})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRemote_Errors(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]string
	}{
		{"not found", map[string]string{}},
		{"invalid json", map[string]string{"/data": `{"levels":`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := serveJSON(t, tt.routes)
			r := newTestRemote(t, ts.URL)

			_, err := r.SampleAll(context.Background(), []int{1})
			assert.ErrorIs(t, err, gpiolive.ErrChannelRead)
		})
	}
}

func TestRemote_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	r := newTestRemote(t, url)
	_, err := r.SampleAll(context.Background(), []int{1})
	assert.ErrorIs(t, err, gpiolive.ErrChannelRead)
}

func TestRemote_SystemInfo(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{"/info": `{"firmware":"1.0","uptime_s":12}`})
	r := newTestRemote(t, ts.URL)

	info, err := r.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", info["firmware"])
	assert.Equal(t, ts.URL, info["remote"])
	assert.Equal(t, int64(1000), info["remote_timeout_ms"])
}

func TestRemote_SystemInfoNull(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{"/info": `null`})
	r := newTestRemote(t, ts.URL+"/")

	info, err := r.SystemInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ts.URL, info["remote"], "trailing slash is trimmed")
}

func TestNewRemote_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  RemoteConfig
	}{
		{"no scheme", RemoteConfig{BaseURL: "192.168.4.1", Channels: remoteChannels()}},
		{"ftp", RemoteConfig{BaseURL: "ftp://board", Channels: remoteChannels()}},
		{"no host", RemoteConfig{BaseURL: "http://", Channels: remoteChannels()}},
		{"no channels", RemoteConfig{BaseURL: "http://board"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRemote(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewRemote_DefaultTimeout(t *testing.T) {
	r, err := NewRemote(RemoteConfig{BaseURL: "http://board", Channels: remoteChannels()})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, r.Timeout())
}

func TestRemote_FeedsBuilder(t *testing.T) {
	ts, _ := serveJSON(t, map[string]string{
		"/data": `{"levels":{"D0":1,"D1":0,"D6":0},"adcv":{"D0":2.5,"D1":0.4,"D6":null}}`,
	})
	r := newTestRemote(t, ts.URL)

	app, err := gpiolive.New(gpiolive.WithSource(r), gpiolive.WithChannels(remoteChannels()...))
	require.NoError(t, err)

	states := app.Read(context.Background())
	require.Len(t, states, 3)
	assert.Equal(t, gpiolive.LevelHigh, states[0].Level)
	assert.Equal(t, gpiolive.LevelLow, states[1].Level)
	assert.Equal(t, gpiolive.LevelLow, states[2].Level)
}
