package cts310

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// LineWidth is the printer's physical line width in characters.
const LineWidth = 48

// encodeText converts UTF-8 text to the device code page (CP437, the
// printer's thermal head character set). Unmappable runes are replaced
// rather than failing the whole frame.
func encodeText(s string) []byte {
	enc := encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder())
	out, _, err := transform.Bytes(enc, []byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// decodeText converts device code page bytes back to UTF-8.
func decodeText(b []byte) string {
	out, _, err := transform.Bytes(charmap.CodePage437.NewDecoder(), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}

// WrapText wraps text into at most maxLines lines of maxChars each,
// splitting on word boundaries. A single word longer than maxChars is
// split forcefully.
func WrapText(text string, maxChars, maxLines int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var lines []string
	for text != "" && len(lines) < maxLines {
		if len(text) <= maxChars {
			lines = append(lines, text)
			break
		}
		cut := strings.LastIndex(text[:maxChars+1], " ")
		if cut <= 0 {
			cut = maxChars
		}
		lines = append(lines, strings.TrimRight(text[:cut], " "))
		text = strings.TrimLeft(text[cut:], " ")
	}
	return lines
}

// DistributeBottomUp wraps text and anchors it to the bottom of a
// numLines block, so the last line always has content and leading lines
// stay empty when the text is short.
func DistributeBottomUp(text string, numLines, maxChars int) []string {
	wrapped := WrapText(text, maxChars, numLines)
	result := make([]string, numLines)
	for i, line := range wrapped {
		result[numLines-len(wrapped)+i] = line
	}
	return result
}

// LayoutItemText produces the three physical description lines for an
// item record. Without a customer note the description fills bottom-up.
// With a note, the note claims the bottom line(s) and the description
// takes what remains; line 3 is always non-empty.
func LayoutItemText(description, note string) [3]string {
	note = strings.TrimSpace(note)
	if note == "" {
		lines := DistributeBottomUp(description, 3, LineWidth)
		return [3]string{lines[0], lines[1], lines[2]}
	}

	truncate := func(s string) string {
		if len(s) > LineWidth {
			return s[:LineWidth]
		}
		return s
	}

	wrappedNote := WrapText(note, LineWidth, 2)
	switch len(wrappedNote) {
	case 0:
		lines := DistributeBottomUp(description, 3, LineWidth)
		return [3]string{lines[0], lines[1], lines[2]}
	case 1:
		// A one-line note sits on line 3, the description directly
		// above it so the receipt shows no gap.
		return [3]string{"", truncate(description), wrappedNote[0]}
	default:
		return [3]string{truncate(description), wrappedNote[0], wrappedNote[1]}
	}
}
