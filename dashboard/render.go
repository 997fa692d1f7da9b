package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"
)

const (
	// DefaultTitle is used when no title is configured.
	DefaultTitle = "GPIOLive"

	defaultPollInterval = 500 * time.Millisecond
)

var pageTemplate = template.Must(template.ParseFS(Assets, "assets/index.html"))

// Pin is one dot on the page.
type Pin struct {
	Label    string  `json:"label"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Placed   bool    `json:"placed"`
	Analog   bool    `json:"analog"`
	Reserved bool    `json:"reserved"`
}

// Page is the input to [Render].
type Page struct {
	Title string

	// ImageURL is the board image. Empty renders pins without a background.
	ImageURL string

	Pins []Pin

	VoltagePriority bool
	ThresholdVolts  float64
	VRef            float64

	StreamPath   string
	SnapshotPath string

	// PollInterval paces the polling fallback. Defaults to 500ms.
	PollInterval time.Duration
}

// Render produces the page document.
//
// All values are escaped for their HTML or JavaScript context, so titles
// and labels cannot inject markup.
func Render(p Page) ([]byte, error) {
	if len(p.Pins) == 0 {
		return nil, errors.New("page needs at least one pin")
	}
	if p.VRef <= 0 {
		return nil, fmt.Errorf("vref must be positive, got %v", p.VRef)
	}
	if p.StreamPath == "" || p.SnapshotPath == "" {
		return nil, errors.New("stream and snapshot paths are required")
	}

	title := p.Title
	if title == "" {
		title = DefaultTitle
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	data := struct {
		Page
		PollMillis int64
	}{Page: p, PollMillis: poll.Milliseconds()}
	data.Title = title

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return buf.Bytes(), nil
}
