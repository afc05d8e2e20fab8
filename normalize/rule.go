// Package normalize implements the Segment Normalizer (C): rule-based
// merge of fragmentary chunks into sentence-level segments, smart-join
// spacing, Chinese-space cleanup, and an optional LLM-assisted
// merge/translate pass (§4.4.3, §4.4.4). Grounded on
// livepeer-catalyst-api's preference for small, pure transform functions
// (pipeline/*.go) over stateful processors.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/subvoxlabs/transcribe-api/providers"
	"github.com/subvoxlabs/transcribe-api/task"
)

const (
	maxGapSeconds  = 1.5
	maxLengthChars = 200
)

var sentenceTerminal = map[rune]bool{
	'。': true,
	'！': true,
	'？': true,
	'.': true,
	'!': true,
	'?': true,
}

// cjkCleanupPattern matches a CJK/fullwidth-punctuation character,
// whitespace, and another such character, per §4.4.3's Chinese-space
// cleanup rule. Applying it once leaves residues when matches overlap,
// so chineseSpaceCleanup iterates until the string stops changing.
var cjkCleanupPattern = regexp.MustCompile(`([\x{4e00}-\x{9fa5}，。！？、：；"'（）【】])\s+([\x{4e00}-\x{9fa5}，。！？、：；"'（）【】])`)

// chineseSpaceCleanup removes whitespace wedged between two CJK or
// fullwidth-punctuation characters, repeatedly, per (P7).
func chineseSpaceCleanup(s string) string {
	for {
		next := cjkCleanupPattern.ReplaceAllString(s, "$1$2")
		if next == s {
			return s
		}
		s = next
	}
}

func isAlnum(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// smartJoin implements §4.4.3's joining rule: a single space between two
// alphanumeric boundary characters, otherwise no separator.
func smartJoin(left, right string) string {
	if left == "" {
		return right
	}
	if right == "" {
		return left
	}
	l := []rune(left)
	r := []rune(right)
	lastL := l[len(l)-1]
	firstR := r[0]
	if isAlnum(lastL) && isAlnum(firstR) {
		return left + " " + right
	}
	return left + right
}

// MergeChunks implements the always-applied rule-based merge of §4.4.3.
// It scans chunks left to right, starting a new segment whenever the
// speaker changes, the current text ends on sentence-terminal
// punctuation, appending would exceed maxLengthChars, or the gap to the
// next chunk exceeds maxGapSeconds.
func MergeChunks(chunks []providers.Chunk) []task.Segment {
	var segments []task.Segment
	var cur *task.Segment

	flush := func() {
		if cur == nil {
			return
		}
		// Fragments arrive from different providers that don't agree on
		// composed vs. decomposed Unicode forms (e.g. accented Latin
		// letters); normalize to NFC before the CJK-specific cleanup so
		// combining marks don't throw off rune-boundary checks downstream.
		cur.Text = chineseSpaceCleanup(norm.NFC.String(cur.Text))
		segments = append(segments, *cur)
		cur = nil
	}

	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}

		startNew := cur == nil
		if cur != nil {
			speakerChanged := cur.Speaker != c.Speaker
			endsTerminal := endsWithTerminal(cur.Text)
			joined := smartJoin(cur.Text, text)
			tooLong := utf8.RuneCountInString(joined) > maxLengthChars
			gapTooLarge := c.Start-cur.End > maxGapSeconds
			startNew = speakerChanged || endsTerminal || tooLong || gapTooLarge
		}

		if startNew {
			flush()
			cur = &task.Segment{Start: c.Start, End: c.End, Text: text, Speaker: c.Speaker}
			continue
		}

		cur.Text = smartJoin(cur.Text, text)
		cur.End = c.End
	}
	flush()
	return segments
}

func endsWithTerminal(s string) bool {
	if s == "" {
		return false
	}
	runes := []rune(s)
	return sentenceTerminal[runes[len(runes)-1]]
}
