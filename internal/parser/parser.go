package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

// Parser dispatches raw uploads to a format specific extractor.
type Parser struct {
	pdf *Chain
}

func New(pdfChain *Chain) *Parser {
	if pdfChain == nil {
		pdfChain = DefaultPDFChain(nil)
	}
	return &Parser{pdf: pdfChain}
}

// FromConfig builds the default PDF chain, with OCR when enabled.
func FromConfig(cfg config.ExtractionConfig) *Parser {
	var rec Recognizer
	if cfg.OCR {
		rec = Tesseract{Path: cfg.TesseractPath, Language: cfg.Language}
	}
	return New(DefaultPDFChain(rec))
}

// Supported reports whether the extension of name can be extracted.
func Supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	_, ok := formats[ext]
	return ok || ext == ".pdf"
}

// Extensions lists the supported file extensions.
func Extensions() []string {
	out := make([]string, 0, len(formats)+1)
	for ext := range formats {
		out = append(out, ext)
	}
	out = append(out, ".pdf")
	sort.Strings(out)
	return out
}

type extractFunc func(data []byte) (string, error)

var formats = map[string]extractFunc{
	".docx": extractDOCX,
	".pptx": extractPPTX,
	".xlsx": extractXLSX,
	".xlsm": extractExcelize,
	".xltx": extractExcelize,
	".xltm": extractExcelize,
	".md":   extractMarkdown,
	".txt":  func(data []byte) (string, error) { return string(data), nil },
}

// Extract returns the text of the upload as documents whose source is name.
func (p *Parser) Extract(ctx context.Context, name string, data []byte) ([]models.Document, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return p.pdf.Extract(ctx, name, data)
	}
	fn, ok := formats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file format %q", models.ErrInvalidInput, ext)
	}
	content, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrExtractionFailed, name, err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: %s: no text", models.ErrExtractionFailed, name)
	}
	return []models.Document{{
		Content: content,
		Metadata: map[string]string{
			models.MetaSource:    name,
			models.MetaExtractor: strings.TrimPrefix(ext, "."),
		},
	}}, nil
}

var (
	paragraphEndRe = regexp.MustCompile(`</w:p>`)
	xmlTagRe       = regexp.MustCompile(`<[^>]+>`)
)

func extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	content = paragraphEndRe.ReplaceAllString(content, "\n")
	content = xmlTagRe.ReplaceAllString(content, "")
	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return strings.Join(paragraphs, "\n\n"), nil
}

func extractPPTX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var names []string
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			names = append(names, f.Name)
			files[f.Name] = f
		}
	}
	sort.Strings(names)

	var slides []string
	for _, name := range names {
		rc, err := files[name].Open()
		if err != nil {
			return "", err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", err
		}
		if t := strings.TrimSpace(extractTextFromXML(string(raw))); t != "" {
			slides = append(slides, t)
		}
	}
	return strings.Join(slides, "\n\n"), nil
}

func extractTextFromXML(xmlContent string) string {
	var b strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if end := strings.Index(part, "</a:t>"); end >= 0 {
			b.WriteString(part[:end] + " ")
		}
	}
	return b.String()
}

func extractXLSX(data []byte) (string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sheet := range f.Sheets {
		fmt.Fprintf(&b, "## Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			b.WriteString(strings.Join(cells, "\t") + "\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func extractExcelize(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer f.Close()

	var b strings.Builder
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t") + "\n")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// extractMarkdown drops markup and keeps block structure as blank lines.
func extractMarkdown(data []byte) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(data))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteString("\n")
				}
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(data))
				}
				b.WriteString("\n")
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
