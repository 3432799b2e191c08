package chunker

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/tmc/langchaingo/textsplitter"

	"intellidoc/internal/models"
	"intellidoc/internal/parser"
)

const (
	StrategyRecursive = "recursive"
	StrategyLangchain = "langchain"
)

// Splitter cuts documents into overlapping chunks.
type Splitter struct {
	Size     int
	Overlap  int
	Strategy string
}

// New validates the size/overlap pair.
func New(size, overlap int, strategy string) (*Splitter, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	switch strategy {
	case "":
		strategy = StrategyRecursive
	case StrategyRecursive, StrategyLangchain:
	default:
		return nil, fmt.Errorf("%w: unknown splitter %q", models.ErrInvalidInput, strategy)
	}
	return &Splitter{Size: size, Overlap: overlap, Strategy: strategy}, nil
}

// Split cuts docs with the recursive boundary strategy.
func Split(docs []models.Document, size, overlap int) ([]models.Chunk, error) {
	s, err := New(size, overlap, StrategyRecursive)
	if err != nil {
		return nil, err
	}
	return s.Split(docs)
}

func (s *Splitter) Split(docs []models.Document) ([]models.Chunk, error) {
	if err := validate(s.Size, s.Overlap); err != nil {
		return nil, err
	}
	var chunks []models.Chunk
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		var spans []span
		if s.Strategy == StrategyLangchain {
			var err error
			spans, err = langchainSpans(doc.Content, s.Size, s.Overlap)
			if err != nil {
				return nil, fmt.Errorf("chunker: %w", err)
			}
		} else {
			spans = recursiveSpans([]rune(doc.Content), s.Size, s.Overlap)
		}
		sections := parser.Sections(doc.Content)
		for i, sp := range spans {
			meta := models.CopyMetadata(doc.Metadata)
			meta[models.MetaChunk] = strconv.Itoa(i + 1)
			meta[models.MetaOffset] = strconv.Itoa(sp.offset)
			if sec := parser.SectionAt(sections, sp.offset); sec != "" {
				meta[models.MetaSection] = sec
			}
			chunks = append(chunks, models.Chunk{Content: sp.text, Metadata: meta})
		}
	}
	return chunks, nil
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidInput, size, overlap)
	}
	return nil
}

type span struct {
	text   string
	offset int // in runes
}

// recursiveSpans walks the text in windows of at most size runes. Each window ends on the
// strongest boundary it contains and the next one starts overlap runes before that end, so
// consecutive spans share exactly overlap runes.
func recursiveSpans(r []rune, size, overlap int) []span {
	var out []span
	n := len(r)
	for s := 0; ; {
		if n-s <= size {
			out = append(out, span{text: string(r[s:]), offset: s})
			return out
		}
		e := boundary(r, s+overlap+1, s+size)
		out = append(out, span{text: string(r[s:e]), offset: s})
		s = e - overlap
	}
}

// boundary picks an end in [lo, hi]. Preference: paragraph break, sentence end, whitespace, hard cut.
func boundary(r []rune, lo, hi int) int {
	for e := hi; e >= lo; e-- {
		if e >= 2 && r[e-2] == '\n' && r[e-1] == '\n' {
			return e
		}
	}
	for e := hi; e >= lo; e-- {
		if e >= 2 && isSentenceEnd(r[e-2]) && unicode.IsSpace(r[e-1]) {
			return e
		}
	}
	for e := hi; e >= lo; e-- {
		if e >= 1 && unicode.IsSpace(r[e-1]) {
			return e
		}
	}
	return hi
}

func isSentenceEnd(c rune) bool {
	return c == '.' || c == '!' || c == '?'
}

// langchainSpans keeps the splitter output but locates each piece in the source for its offset.
func langchainSpans(text string, size, overlap int) ([]span, error) {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
	parts, err := splitter.SplitText(text)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	out := make([]span, 0, len(parts))
	from := 0
	for _, p := range parts {
		off := indexRunes(runes, []rune(p), from)
		if off < 0 {
			off = from
		} else {
			from = off + 1
		}
		out = append(out, span{text: p, offset: off})
	}
	return out, nil
}

func indexRunes(hay, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := from; i+len(needle) <= len(hay); i++ {
		for j, c := range needle {
			if hay[i+j] != c {
				continue outer
			}
		}
		return i
	}
	return -1
}
