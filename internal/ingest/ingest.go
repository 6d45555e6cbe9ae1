// Package ingest turns raw document bytes into chapter-sized pieces ready
// to become memories. It owns encoding detection (UTF-8, then Latin-1,
// then Windows-1252) and the chapter splitter used by bulk knowledge
// ingestion.
package ingest

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/membank-io/membank/internal/errors"
)

// Encoding names reported by DecodeText.
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin-1"
	EncodingWindows1252 = "windows-1252"
)

// badRuneThreshold rejects a decode when more than one rune per hundred
// is a replacement character or an unexpected control character.
const badRuneThreshold = 100

// DecodeText decodes document bytes, trying UTF-8, Latin-1, and
// Windows-1252 in order and returning the first decode whose bad-rune
// rate stays under one per hundred. It returns the text and the name of
// the encoding that won. All three failing reports EncodingUnknown.
func DecodeText(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", EncodingUTF8, nil
	}

	text := string(data)
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, string(utf8.RuneError))
	}
	if acceptable(text) {
		return text, EncodingUTF8, nil
	}

	if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		text := string(decoded)
		if acceptable(text) {
			return text, EncodingLatin1, nil
		}
	}

	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
		text := string(decoded)
		if acceptable(text) {
			return text, EncodingWindows1252, nil
		}
	}

	return "", "", errors.EncodingUnknown("document is not valid utf-8, latin-1, or windows-1252 text")
}

// acceptable counts replacement characters and control characters other
// than tab, newline, carriage return, and form feed. Form feed survives
// because it is a chapter delimiter.
func acceptable(text string) bool {
	var total, bad int
	for _, r := range text {
		total++
		if r == utf8.RuneError {
			bad++
			continue
		}
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' && r != '\f' {
			bad++
		}
	}
	if total == 0 {
		return true
	}
	return bad*badRuneThreshold <= total
}

// Chapter is one split piece of a document. Title is empty when the
// chapter had no heading of its own.
type Chapter struct {
	Title string
	Body  string
}

// SplitChapters splits a document on markdown H1 headings, lines starting
// with "Chapter N", and form feeds. Text before the first delimiter
// becomes a leading untitled chapter when non-empty. Chapters opened by
// an explicit delimiter are returned even when empty so callers can count
// them as skipped.
func SplitChapters(text string) []Chapter {
	var chapters []Chapter
	var current strings.Builder
	currentTitle := ""
	delimited := false

	flush := func() {
		body := strings.TrimSpace(current.String())
		current.Reset()
		if body == "" && !delimited {
			return
		}
		chapters = append(chapters, Chapter{Title: currentTitle, Body: body})
	}

	for _, line := range strings.Split(text, "\n") {
		for {
			idx := strings.IndexByte(line, '\f')
			if idx < 0 {
				break
			}
			current.WriteString(line[:idx])
			current.WriteByte('\n')
			flush()
			delimited = true
			currentTitle = ""
			line = line[idx+1:]
		}

		if title, ok := headingTitle(line); ok {
			flush()
			delimited = true
			currentTitle = title
			continue
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()

	return chapters
}

// headingTitle recognizes the two heading forms that open a new chapter.
func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "# ") {
		return strings.TrimSpace(trimmed[2:]), true
	}

	if rest, ok := strings.CutPrefix(trimmed, "Chapter "); ok {
		rest = strings.TrimSpace(rest)
		if rest != "" && isDigits(strings.Fields(rest)[0]) {
			return trimmed, true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	trimmed := strings.TrimRight(s, ".:")
	if trimmed == "" {
		return false
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
