// Package captions parses WebVTT-style subtitle text into timestamped
// segments and derives plain-text transcript variants from it, used by the
// URL ingestor's captions fast path.
package captions

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timestampLine matches a VTT cue timing line, accepting both
// HH:MM:SS.mmm and the shorter MM:SS.mmm form on either side of the arrow.
var timestampLine = regexp.MustCompile(`^\s*(\d{1,2}:)?(\d{2}):(\d{2})[.,](\d{1,3})\s*-->\s*(\d{1,2}:)?(\d{2}):(\d{2})[.,](\d{1,3})`)

// headerLine matches VTT structural markers that carry no cue text.
var headerLine = regexp.MustCompile(`^(WEBVTT|NOTE|STYLE|Kind:|Language:)`)

// tagPattern strips inline markup tags like <b> or <00:00:01.000>.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// positionalToken strips cue settings appended to timing lines, e.g.
// align:start position:10% line:0%.
var positionalToken = regexp.MustCompile(`\b(align|position|line|size|vertical):\S+`)

// Segment is one timed caption cue.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Parse reads raw VTT text and returns its cues in document order.
func Parse(vtt string) []Segment {
	lines := strings.Split(strings.ReplaceAll(vtt, "\r\n", "\n"), "\n")

	var segments []Segment
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !timestampLine.MatchString(line) {
			continue
		}
		start, end, ok := parseTimingLine(line)
		if !ok {
			continue
		}

		var textLines []string
		for i++; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "" {
				break
			}
			textLines = append(textLines, stripTags(lines[i]))
		}

		segments = append(segments, Segment{
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(strings.Join(textLines, " ")),
		})
	}

	return segments
}

func parseTimingLine(line string) (time.Duration, time.Duration, bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, ok := parseTimestamp(strings.TrimSpace(parts[0]))
	if !ok {
		return 0, 0, false
	}
	// The right-hand side may carry trailing cue settings; only the first
	// whitespace-delimited token is the timestamp.
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, false
	}
	end, ok := parseTimestamp(endField[0])
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// parseTimestamp accepts HH:MM:SS.mmm or MM:SS.mmm.
func parseTimestamp(s string) (time.Duration, bool) {
	s = strings.ReplaceAll(s, ",", ".")
	fields := strings.Split(s, ":")

	var h, m int
	var secField string
	switch len(fields) {
	case 3:
		h, _ = strconv.Atoi(fields[0])
		m, _ = strconv.Atoi(fields[1])
		secField = fields[2]
	case 2:
		m, _ = strconv.Atoi(fields[0])
		secField = fields[1]
	default:
		return 0, false
	}

	secParts := strings.SplitN(secField, ".", 2)
	sec, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, false
	}
	var millis int
	if len(secParts) == 2 {
		msStr := secParts[1]
		for len(msStr) < 3 {
			msStr += "0"
		}
		millis, _ = strconv.Atoi(msStr[:3])
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second + time.Duration(millis)*time.Millisecond
	return d, true
}

func stripTags(line string) string {
	line = tagPattern.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// StripNoise removes header markers, timing lines, inline tags, and
// positional cue settings from raw VTT text, leaving only caption prose.
func StripNoise(vtt string) []string {
	lines := strings.Split(strings.ReplaceAll(vtt, "\r\n", "\n"), "\n")
	var out []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || headerLine.MatchString(trimmed) || timestampLine.MatchString(trimmed) {
			continue
		}
		cleaned := positionalToken.ReplaceAllString(stripTags(trimmed), "")
		cleaned = strings.TrimSpace(cleaned)
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

// Merged joins every cue's text into one whitespace-normalized string, the
// representation used when no timing information is needed downstream.
func Merged(vtt string) string {
	lines := StripNoise(vtt)
	return strings.Join(strings.Fields(strings.Join(lines, " ")), " ")
}

// LinePreserving joins every cue's text with newlines kept intact, the
// representation used when caption line breaks carry meaning (e.g. writing
// an SRT/VTT file back out).
func LinePreserving(vtt string) string {
	lines := StripNoise(vtt)
	return strings.Join(lines, "\n")
}
