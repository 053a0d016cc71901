package capture

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	labelPrefix = "câmera:"
	// TimestampLayout formats the capture time embedded in filenames.
	TimestampLayout = "20060102_150405"
)

var labelPrefixLen = utf8.RuneCountInString(labelPrefix)

// Sanitize turns a camera label into a filesystem-safe name. A leading
// "Câmera:" (any case) is dropped, reserved characters become underscores and
// every whitespace run collapses into a single underscore.
func Sanitize(label string) string {
	label = stripLabelPrefix(norm.NFC.String(label))

	var b strings.Builder
	b.Grow(len(label))
	inSpace := false
	for _, r := range label {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		case isReserved(r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
		inSpace = false
	}
	return b.String()
}

func stripLabelPrefix(label string) string {
	runes := []rune(label)
	if len(runes) < labelPrefixLen {
		return label
	}
	if !strings.EqualFold(string(runes[:labelPrefixLen]), labelPrefix) {
		return label
	}
	return strings.TrimSpace(string(runes[labelPrefixLen:]))
}

func isReserved(r rune) bool {
	switch r {
	case '\\', '/', '*', '?', ':', '"', '<', '>', '|':
		return true
	}
	return false
}

// Filename builds the screenshot name for a marker. The ordinal is written
// one-based so names match the marker numbering shown in logs.
func Filename(sanitized string, at time.Time, ordinal int) string {
	return fmt.Sprintf("%s_%s_%d.png", sanitized, at.Format(TimestampLayout), ordinal+1)
}
