package parser

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intellidoc/internal/models"
)

type fakeStage struct {
	name  string
	text  string
	err   error
	calls *[]string
}

func (f fakeStage) Name() string { return f.name }

func (f fakeStage) Extract(ctx context.Context, data []byte) (string, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	return f.text, f.err
}

type panicStage struct{}

func (panicStage) Name() string { return "panicky" }

func (panicStage) Extract(ctx context.Context, data []byte) (string, error) {
	panic("malformed xref")
}

func TestChainFallsBackInOrder(t *testing.T) {
	var calls []string
	chain := NewChain(
		fakeStage{name: "native", err: errors.New("no text layer"), calls: &calls},
		fakeStage{name: "pdfcpu", text: "   ", calls: &calls},
		fakeStage{name: "ocr", text: "scanned text", calls: &calls},
		fakeStage{name: "never", text: "unused", calls: &calls},
	)

	docs, err := chain.Extract(context.Background(), "scan.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "scanned text", docs[0].Content)
	assert.Equal(t, "scan.pdf", docs[0].Source())
	assert.Equal(t, "ocr", docs[0].Metadata[models.MetaExtractor])
	assert.Equal(t, []string{"native", "pdfcpu", "ocr"}, calls)
}

func TestChainAllStagesFail(t *testing.T) {
	chain := NewChain(
		fakeStage{name: "native", err: errors.New("boom")},
		panicStage{},
		fakeStage{name: "ocr"},
	)

	_, err := chain.Extract(context.Background(), "bad.pdf", nil)
	require.ErrorIs(t, err, models.ErrExtractionFailed)
	assert.Contains(t, err.Error(), "native: boom")
	assert.Contains(t, err.Error(), "panicky: panic")
	assert.Contains(t, err.Error(), "ocr: empty")
}

func TestChainStageNames(t *testing.T) {
	assert.Equal(t, []string{"native", "pdfcpu"}, DefaultPDFChain(nil).Stages())
	assert.Equal(t, []string{"native", "pdfcpu", "ocr"}, DefaultPDFChain(Tesseract{}).Stages())
}

func TestDecodeContentStream(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		want   string
	}{
		{"literal and word gap", "BT /F1 12 Tf 10 20 Td (Loan \\(secured\\)) Tj ET\nBT [(Inter) -250 (est)] TJ ET", "Loan (secured) Inter est"},
		{"kerning inside word", "[(Inter) -30 (est)] TJ", "Interest"},
		{"hex string", "BT <4C6F616E> Tj ET", "Loan"},
		{"hex in array", "[<496E74> 12 (erest) -400 <726174 65>] TJ", "Interest rate"},
		{"odd hex digits", "<41424> Tj", "AB@"},
		{"utf16 hex", "<FEFF00410067007200E9> Tj", "Agré"},
		{"nested parens and octal", "(a (b) \\101) Tj", "a (b) A"},
		{"quote operators", "(first) ' 0 0 (second) \"", "first second"},
		{"dictionary skipped", "<< /Length 5 >> BT (x) Tj ET", "x"},
		{"comment skipped", "% (hidden) Tj\n(shown) Tj", "shown"},
		{"no show operators", "BT 10 20 Td ET", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeContentStream(tt.stream))
		})
	}
}

func samplePDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 12)
	for _, l := range lines {
		pdf.Cell(0, 10, l)
		pdf.Ln(10)
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestPDFExtraction(t *testing.T) {
	data := samplePDF(t, "Governing law is India", "Interest at 9.5% per annum")

	docs, err := New(nil).Extract(context.Background(), "loan.pdf", data)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, docs[0].Content, "Governing law")
	assert.Equal(t, "loan.pdf", docs[0].Source())
}

func TestExtractDispatch(t *testing.T) {
	p := New(nil)
	ctx := context.Background()

	docs, err := p.Extract(ctx, "notes.TXT", []byte("plain words"))
	require.NoError(t, err)
	assert.Equal(t, "plain words", docs[0].Content)
	assert.Equal(t, "txt", docs[0].Metadata[models.MetaExtractor])

	docs, err = p.Extract(ctx, "readme.md", []byte("# Title\n\nSome *emphasis* here.\n\n- one\n- two\n"))
	require.NoError(t, err)
	assert.Contains(t, docs[0].Content, "Title")
	assert.Contains(t, docs[0].Content, "Some emphasis here.")
	assert.NotContains(t, docs[0].Content, "*")
	assert.NotContains(t, docs[0].Content, "#")

	_, err = p.Extract(ctx, "image.png", []byte{0x89})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = p.Extract(ctx, "blank.txt", []byte("  \n"))
	assert.ErrorIs(t, err, models.ErrExtractionFailed)

	_, err = p.Extract(ctx, "broken.docx", []byte("not a zip"))
	assert.ErrorIs(t, err, models.ErrExtractionFailed)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("a.PDF"))
	assert.True(t, Supported("b.docx"))
	assert.False(t, Supported("c.exe"))

	exts := Extensions()
	assert.IsIncreasing(t, exts)
	assert.Contains(t, exts, ".pdf")
	for _, ext := range exts {
		assert.True(t, Supported("x"+ext), ext)
	}
}

func TestSections(t *testing.T) {
	text := "Preamble text.\nARTICLE 1 DEFINITIONS\nTerms.\n2. TERMINATION\nEither party.\nSchedule A\nFees."
	sections := Sections(text)
	require.Len(t, sections, 3)
	assert.Equal(t, "ARTICLE 1 DEFINITIONS", sections[0].Title)
	assert.Equal(t, "2. TERMINATION", sections[1].Title)
	assert.Equal(t, "Schedule A", sections[2].Title)

	assert.Equal(t, "", SectionAt(sections, 0))
	assert.Equal(t, "ARTICLE 1 DEFINITIONS", SectionAt(sections, sections[0].Offset))
	assert.Equal(t, "2. TERMINATION", SectionAt(sections, sections[2].Offset-1))
	assert.Equal(t, "Schedule A", SectionAt(sections, 10_000))
}
