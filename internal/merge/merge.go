// Package merge reassembles translated chunks into one document, removing
// the context overlap a provider may have echoed back.
package merge

import (
	"regexp"
	"strings"
	"unicode"
)

// Merger joins translated chunks in order.
type Merger struct {
	// Overlap bounds the longest prefix stripped from a chunk.
	Overlap int
	// Terms, when set, is applied once after normalization.
	Terms *Terminology
}

// Merge joins chunks with the given overlap bound and normalizes the result.
func Merge(chunks []string, overlap int) string {
	return (&Merger{Overlap: overlap}).Merge(chunks)
}

// Merge joins chunks, drops each chunk's longest prefix that repeats the tail
// of the text merged so far, then normalizes whitespace and punctuation.
// A chunk may end in the break that followed it in the source document; the
// break is kept and the next chunk's overlap is matched against the text
// before it.
func (m *Merger) Merge(chunks []string) string {
	var acc strings.Builder
	for i, chunk := range chunks {
		if i > 0 && m.Overlap > 0 {
			if n := overlapLen(acc.String(), chunk, m.Overlap); n > 0 {
				chunk = string([]rune(chunk)[n:])
				if endsWithSpace(acc.String()) {
					chunk = strings.TrimLeftFunc(chunk, unicode.IsSpace)
				}
			}
		}
		if acc.Len() > 0 && chunk != "" && !endsWithSpace(acc.String()) && !startsWithSpace(chunk) {
			acc.WriteByte(' ')
		}
		acc.WriteString(chunk)
	}

	out := Normalize(acc.String())
	if m.Terms != nil {
		out = m.Terms.Apply(out)
	}
	return out
}

// overlapLen returns the rune length of the longest prefix of next, at most
// limit runes, that equals a suffix of acc without its trailing whitespace.
// Only matches that start and end on word boundaries and hold at least one
// letter or digit count, so repeated quotes or markup are never dropped.
func overlapLen(acc, next string, limit int) int {
	a := []rune(strings.TrimRightFunc(acc, unicode.IsSpace))
	b := []rune(next)
	n := min(limit, len(a), len(b))

	for l := n; l > 0; l-- {
		if !equalRunes(a[len(a)-l:], b[:l]) || !hasWordRune(b[:l]) {
			continue
		}
		start := len(a) - l
		startOK := start == 0 || isBreak(a[start-1]) || isBreak(a[start])
		endOK := l == len(b) || isBreak(b[l]) || isBreak(b[l-1])
		if startOK && endOK {
			return l
		}
	}
	return 0
}

func hasWordRune(rs []rune) bool {
	for _, r := range rs {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func equalRunes(x, y []rune) bool {
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func isBreak(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func endsWithSpace(s string) bool {
	return strings.TrimRightFunc(s, unicode.IsSpace) != s
}

func startsWithSpace(s string) bool {
	return strings.TrimLeftFunc(s, unicode.IsSpace) != s
}

var (
	lineBreak        = regexp.MustCompile(`\r\n?|[\x{85}\x{2028}\x{2029}]`)
	horizontalSpace  = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	lineEdgeSpace    = regexp.MustCompile(` *\n *`)
	blankLines       = regexp.MustCompile(`\n{3,}`)
	spaceBeforePunct = regexp.MustCompile(` +([.,!?;:،؛؟])`)
	missingSpace     = regexp.MustCompile(`([,;،؛])(\pL)`)
)

// Normalize collapses runs of horizontal whitespace to single spaces, trims
// every line and keeps at most one blank line between paragraphs. It then
// removes spaces before punctuation and adds a space after commas and
// semicolons (Latin and Arabic) that run straight into a letter. Line and
// paragraph structure survives. Normalize is idempotent.
func Normalize(text string) string {
	text = lineBreak.ReplaceAllString(text, "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = lineEdgeSpace.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = missingSpace.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}
