// Package subtitles implements the Subtitle Formatter (D): SRT and VTT
// rendering from segments, per §4.5.
package subtitles

import (
	"fmt"
	"strings"

	"github.com/subvoxlabs/transcribe-api/task"
)

// Formatter satisfies task.SubtitleFormatter for composition-root wiring.
type Formatter struct{}

func NewFormatter() Formatter { return Formatter{} }

func (Formatter) FormatSRT(segments []task.Segment) string { return FormatSRT(segments) }
func (Formatter) FormatVTT(segments []task.Segment) string { return FormatVTT(segments) }

// FormatSRT renders segments as SRT: 1-indexed blocks of
// "i\nHH:MM:SS,mmm --> HH:MM:SS,mmm\ntext\n", blank line between blocks.
func FormatSRT(segments []task.Segment) string {
	var b strings.Builder
	for i, s := range segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1, srtTimestamp(s.Start), srtTimestamp(s.End), s.Text)
		if i < len(segments)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatVTT renders segments as WebVTT: a "WEBVTT\n\n" header followed
// by blocks of "HH:MM:SS.mmm --> HH:MM:SS.mmm\ntext\n".
func FormatVTT(segments []task.Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, s := range segments {
		fmt.Fprintf(&b, "%s --> %s\n%s\n", vttTimestamp(s.Start), vttTimestamp(s.End), s.Text)
		if i < len(segments)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	h, m, s, mmm := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, mmm)
}

func vttTimestamp(seconds float64) string {
	h, m, s, mmm := splitSeconds(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, mmm)
}

// floatEpsilon absorbs binary-float representation error in decimal
// literals like 62.001 so floor() lands on the intended millisecond
// instead of one below it.
const floatEpsilon = 1e-6

func splitSeconds(seconds float64) (h, m, s, mmm int) {
	total := int64(seconds)
	mmm = int((seconds-float64(total))*1000 + floatEpsilon)
	h = int(total / 3600)
	m = int((total % 3600) / 60)
	s = int(total % 60)
	return
}
