package segment

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Chunk is one ordered slice of a document. Context holds the tail of the
// previous chunk's original text and is empty for the first chunk. Break is
// the separator that followed the chunk in the document: "\n\n" between
// paragraphs, "\n" between lines, " " inside a line and "" after the last.
type Chunk struct {
	Index   int
	Text    string
	Context string
	Break   string
}

// Segmenter splits text into chunks of at most ChunkSize runes.
type Segmenter struct {
	ChunkSize int
	Overlap   int
}

// New returns a Segmenter, falling back to defaults for non-positive sizes.
// A zero overlap is kept as is and disables context.
func New(chunkSize, overlap int) *Segmenter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Segmenter{ChunkSize: chunkSize, Overlap: overlap}
}

// Segment is a convenience wrapper around New(chunkSize, overlapSize).Segment.
func Segment(text string, chunkSize, overlapSize int) []Chunk {
	return New(chunkSize, overlapSize).Segment(text)
}

// Segment splits text and attaches the overlap context to every chunk after
// the first.
func (s *Segmenter) Segment(text string) []Chunk {
	parts := s.split(text)
	chunks := make([]Chunk, len(parts))
	for i, part := range parts {
		chunks[i] = Chunk{Index: i, Text: part.text, Break: part.brk}
		if i > 0 {
			chunks[i].Context = Context(parts[i-1].text, s.Overlap)
		}
	}
	return chunks
}

// Join concatenates chunk texts with their breaks.
func Join(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Text)
		b.WriteString(c.Break)
	}
	return b.String()
}

type level int

const (
	levelParagraphs level = iota
	levelLines
	levelSentences
	levelClauses
	levelWords
)

// piece is a chunk text and the separator that followed it.
type piece struct {
	text string
	brk  string
}

var paragraphBreak = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Split returns the chunk texts in document order.
func (s *Segmenter) Split(text string) []string {
	parts := s.split(text)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.text
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Segmenter) split(text string) []piece {
	return s.pack(nonEmpty(paragraphBreak.Split(text, -1)), s.ChunkSize, "\n\n", levelParagraphs)
}

// pack accumulates units into buffers of at most limit runes. A unit that is
// too large on its own is handed down to the next finer level. Every
// boundary pack creates is recorded as sep on the piece before it.
func (s *Segmenter) pack(units []string, limit int, sep string, lvl level) []piece {
	var (
		out    []piece
		buf    []string
		bufLen int
	)
	sepLen := utf8.RuneCountInString(sep)

	emit := func(ps ...piece) {
		if len(out) > 0 {
			out[len(out)-1].brk = sep
		}
		out = append(out, ps...)
	}
	flush := func() {
		if len(buf) > 0 {
			emit(piece{text: strings.Join(buf, sep)})
			buf, bufLen = nil, 0
		}
	}

	for _, unit := range units {
		n := utf8.RuneCountInString(unit)
		if n > limit && lvl < levelWords {
			flush()
			if finer := s.splitFiner(unit, lvl+1); len(finer) > 0 {
				emit(finer...)
			}
			continue
		}

		add := n
		if len(buf) > 0 {
			add += sepLen
		}
		if len(buf) > 0 && bufLen+add > limit {
			flush()
			add = n
		}
		buf = append(buf, unit)
		bufLen += add
	}
	flush()

	return out
}

func (s *Segmenter) splitFiner(text string, lvl level) []piece {
	switch lvl {
	case levelLines:
		return s.pack(nonEmpty(strings.Split(text, "\n")), s.ChunkSize, "\n", levelLines)
	case levelSentences:
		return s.pack(splitAfter(text, isSentenceEnd), s.ChunkSize, " ", levelSentences)
	case levelClauses:
		return s.pack(splitAfter(text, isClauseEnd), max(s.ChunkSize/2, 1), " ", levelClauses)
	default:
		return s.pack(strings.Fields(text), s.ChunkSize, " ", levelWords)
	}
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '؟', '。', '…':
		return true
	}
	return false
}

func isClauseEnd(r rune) bool {
	switch r {
	case ',', ';', ':', '،', '؛':
		return true
	}
	return false
}

// splitAfter cuts text after every rune matching end that is followed by
// whitespace. The pieces are trimmed and empty pieces dropped.
func splitAfter(text string, end func(rune) bool) []string {
	var pieces []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if end(runes[i]) && unicode.IsSpace(runes[i+1]) {
			pieces = append(pieces, string(runes[start:i+1]))
			start = i + 1
		}
	}
	pieces = append(pieces, string(runes[start:]))
	return nonEmpty(pieces)
}

func nonEmpty(pieces []string) []string {
	out := pieces[:0]
	for _, p := range pieces {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Context returns the last overlap runes of prev, starting at a word
// boundary. It is empty when overlap is zero or the tail is a single
// partial word.
func Context(prev string, overlap int) string {
	if overlap <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(prev))
	if len(runes) <= overlap {
		return string(runes)
	}

	start := len(runes) - overlap
	if !unicode.IsSpace(runes[start-1]) {
		for start < len(runes) && !unicode.IsSpace(runes[start]) {
			start++
		}
	}
	return strings.TrimSpace(string(runes[start:]))
}
