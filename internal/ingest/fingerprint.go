package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	bulletRe = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	headRe   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// stripMarkup removes the markdown decoration Gemini tends to emit so
// titles and summaries compare and display as plain text.
func stripMarkup(s string) string {
	s = boldRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	s = bulletRe.ReplaceAllString(s, "")
	s = headRe.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// normalize lowercases and collapses whitespace after stripping markup,
// so cosmetic rewording of the same story hashes identically.
func normalize(s string) string {
	return strings.ToLower(stripMarkup(s))
}

// Fingerprint hashes the normalized title+summary. Two items with the
// same fingerprint in one category within the dedup window are
// duplicates.
func Fingerprint(title, summary string) string {
	h := sha256.New()
	h.Write([]byte(normalize(title)))
	h.Write([]byte{'\n'})
	h.Write([]byte(normalize(summary)))
	return hex.EncodeToString(h.Sum(nil))
}
