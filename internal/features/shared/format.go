package shared

import (
	"fmt"
	"strings"
	"time"
)

var spinnerFrames = []string{"◐", "◓", "◑", "◒"}

// FormatDuration renders m:ss, or h:mm:ss for durations over an hour.
// Zero means unknown/live.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "unknown"
	}

	total := int(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// ProgressBar renders a fixed-width elapsed/total bar with a spinner frame
// keyed to the wall clock.
func ProgressBar(elapsed, total time.Duration) string {
	const width = 20

	filled := 0
	if total > 0 {
		if elapsed > total {
			elapsed = total
		}
		filled = int(int64(width) * int64(elapsed) / int64(total))
	}
	if filled > width {
		filled = width
	}

	spinner := spinnerFrames[time.Now().Unix()%int64(len(spinnerFrames))]

	var b strings.Builder
	b.WriteString(spinner)
	b.WriteString(" [")
	b.WriteString(strings.Repeat("▰", filled))
	b.WriteString(strings.Repeat("▱", width-filled))
	b.WriteString("] ")
	b.WriteString(FormatDuration(elapsed))
	if total > 0 {
		b.WriteString(" / ")
		b.WriteString(FormatDuration(total))
	}
	return b.String()
}
