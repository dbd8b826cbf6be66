// Package clock provides time helpers shared by all services.
// Readings and events carry wall-clock timestamps in a fixed wire format;
// cycle pacing uses Go's monotonic clock via time.Since.
package clock

import "time"

// RecordingLayout is the wire format for recording_time fields.
const RecordingLayout = "2006-01-02 15:04:05"

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FormatRecording renders a timestamp in the recording_time wire format.
func FormatRecording(t time.Time) string {
	return t.UTC().Format(RecordingLayout)
}

// ParseRecording parses a recording_time wire string as UTC.
func ParseRecording(s string) (time.Time, error) {
	return time.ParseInLocation(RecordingLayout, s, time.UTC)
}

// EpochMillis returns milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
