package telemetry

import (
	"bytes"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Reading pairs a channel with the sample taken for it.
type Reading struct {
	Channel Channel
	Sample  Sample
}

// Memory holds best-effort heap statistics in bytes.
// A nil field means the figure was unavailable.
type Memory struct {
	Free *int64
	Used *int64
}

// MemoryReader reports heap statistics.
type MemoryReader func() Memory

// RuntimeMemory reads the Go runtime's heap statistics.
//
// Free is heap memory held by the process but not in use; Used is memory
// occupied by live and not-yet-swept objects.
func RuntimeMemory() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	free := int64(ms.HeapIdle - ms.HeapReleased)
	used := int64(ms.HeapAlloc)
	return Memory{Free: &free, Used: &used}
}

// Snapshot is one point-in-time reading of every configured channel.
//
// A Snapshot is never mutated after [Builder.Build] returns it and can be
// shared and serialized from any goroutine.
type Snapshot struct {
	Readings []Reading
	Memory   Memory
	TakenAt  time.Time
}

// MarshalJSON renders the wire form used by both the snapshot endpoint and
// the event stream:
//
//	{"levels":{"D0":1,...},"analog":{"D0":null,...},"heap":123}
//
// Keys follow configured channel order. An absent digital level renders as 0
// (levels are strictly 0/1); an absent voltage renders as null; heap is the
// free-heap figure or null.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(32 + len(s.Readings)*24)

	buf.WriteString(`{"levels":{`)
	for i, r := range s.Readings {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, r.Channel.Label); err != nil {
			return nil, err
		}
		if r.Sample.Digital != nil && *r.Sample.Digital != 0 {
			buf.WriteByte('1')
		} else {
			buf.WriteByte('0')
		}
	}

	buf.WriteString(`},"analog":{`)
	for i, r := range s.Readings {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, r.Channel.Label); err != nil {
			return nil, err
		}
		writeVoltage(&buf, r.Sample.Voltage)
	}

	buf.WriteString(`},"heap":`)
	if s.Memory.Free != nil {
		buf.WriteString(strconv.FormatInt(*s.Memory.Free, 10))
	} else {
		buf.WriteString("null")
	}
	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func writeKey(buf *bytes.Buffer, label string) error {
	key, err := json.Marshal(label)
	if err != nil {
		return err
	}
	buf.Write(key)
	buf.WriteByte(':')
	return nil
}

// writeVoltage writes v rounded to millivolts, or null.
func writeVoltage(buf *bytes.Buffer, v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		buf.WriteString("null")
		return
	}
	rounded := math.Round(*v*1000) / 1000
	buf.WriteString(strconv.FormatFloat(rounded, 'f', -1, 64))
}
