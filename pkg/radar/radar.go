// Package radar provides distance sources for the engagement poller.
//
// Reader polls the radar board over serial, Bridge receives readings from a
// remote radar over websocket, and Simulated and Static stand in for the
// sensor when the wall runs without hardware.
package radar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrBadFormat is returned for reply lines that are not six integers.
var ErrBadFormat = errors.New("radar: unexpected reading format")

// Sample is the latest distance as seen by a source.
// OK is false when no reliable reading is available.
type Sample struct {
	DistanceMM int
	OK         bool
	At         time.Time
}

// Reading is one full radar report: "ts x y dist angle speed".
type Reading struct {
	TimestampMS int `json:"ts"`
	XMM         int `json:"x"`
	YMM         int `json:"y"`
	DistanceMM  int `json:"distance_mm"`
	AngleDeg    int `json:"angle"`
	SpeedCMS    int `json:"speed"`
}

// IsZero reports whether every field is zero. Boards send all-zero
// reports when nothing is tracked.
func (r Reading) IsZero() bool {
	return r == Reading{}
}

// ParseReading parses a "ts x y dist angle speed" line.
func ParseReading(line string) (Reading, error) {
	parts := strings.Fields(line)
	if len(parts) != 6 {
		return Reading{}, fmt.Errorf("%w: %q", ErrBadFormat, line)
	}

	var vals [6]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Reading{}, fmt.Errorf("radar: parse %q: %w", line, err)
		}
		vals[i] = v
	}

	return Reading{
		TimestampMS: vals[0],
		XMM:         vals[1],
		YMM:         vals[2],
		DistanceMM:  vals[3],
		AngleDeg:    vals[4],
		SpeedCMS:    vals[5],
	}, nil
}

// latest holds the most recent accepted reading and applies the staleness rule.
type latest struct {
	reading Reading
	at      time.Time
	set     bool
}

func (l latest) sample(now time.Time, maxAge time.Duration) Sample {
	if !l.set || l.reading.DistanceMM <= 0 {
		return Sample{At: l.at}
	}
	if maxAge > 0 && now.Sub(l.at) > maxAge {
		return Sample{DistanceMM: l.reading.DistanceMM, At: l.at}
	}
	return Sample{DistanceMM: l.reading.DistanceMM, OK: true, At: l.at}
}
