// Package progress holds the pure derivations shared by the sender and
// receiver sessions: percentages, speeds, durations and the display name for
// a set of transferred paths. Everything here is stateless so both roles can
// share one implementation.
package progress

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FallbackDisplayName is used when no file list is known at completion time.
const FallbackDisplayName = "files"

// BytesPercent returns the percentage of transferred against total. A total
// of zero or less yields 0 rather than NaN/Inf. The result is deliberately
// not clamped: the engine is authoritative, and transferred > total is shown
// as-is.
func BytesPercent(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(transferred) / float64(total) * 100
}

// SpeedBps converts the engine's raw speed units to bytes per second. The
// engine reports speed multiplied by 1000 to keep three decimal places in an
// integer payload.
func SpeedBps(raw int64) float64 {
	return float64(raw) / 1000
}

// FileCountPercent passes through the engine-supplied integer percentage for
// import/export file counting.
func FileCountPercent(pct int64) float64 {
	return float64(pct)
}

// DurationMS returns the elapsed milliseconds between start and end, or 0
// when the start time was never recorded.
func DurationMS(start, end time.Time) int64 {
	if start.IsZero() {
		return 0
	}
	return end.Sub(start).Milliseconds()
}

// DisplayName derives a single display identity from the transferred paths:
// the file name for a single path, the shared top-level directory when all
// paths live under one, and a "<n> files" label otherwise.
func DisplayName(paths []string) string {
	switch len(paths) {
	case 0:
		return FallbackDisplayName
	case 1:
		return lastSegment(paths[0])
	}

	first := firstSegment(paths[0])
	shared := first != ""
	for _, p := range paths[1:] {
		if firstSegment(p) != first {
			shared = false
			break
		}
	}
	if shared {
		return first
	}
	return fmt.Sprintf("%d files", len(paths))
}

// Triple is a parsed three-field progress payload. Field meaning depends on
// the event: transport ticks carry (bytes, total, raw speed), file-count
// ticks carry (current, total, percentage).
type Triple struct {
	A, B, C int64
}

// ParseTriple parses a colon-joined "a:b:c" payload. Any payload that does
// not contain exactly three integer fields is rejected so a malformed tick
// never mutates session state.
func ParseTriple(payload string) (Triple, error) {
	parts := strings.Split(payload, ":")
	if len(parts) != 3 {
		return Triple{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	var t Triple
	for i, dst := range []*int64{&t.A, &t.B, &t.C} {
		v, err := strconv.ParseInt(strings.TrimSpace(parts[i]), 10, 64)
		if err != nil {
			return Triple{}, fmt.Errorf("field %d: %w", i, err)
		}
		*dst = v
	}
	return t, nil
}

// ParseCount parses a single integer payload such as an import file count or
// a resume offset.
func ParseCount(payload string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
}

func lastSegment(path string) string {
	segs := split(path)
	if len(segs) == 0 {
		return path
	}
	return segs[len(segs)-1]
}

func firstSegment(path string) string {
	segs := split(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[0]
}

// split breaks a path on both separator styles; the engine reports relative
// paths with forward slashes but selected paths come from the local OS.
func split(path string) []string {
	fields := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return fields
}
