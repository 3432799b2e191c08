package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"
)

// Stage is one text extraction backend.
type Stage interface {
	Name() string
	Extract(ctx context.Context, data []byte) (string, error)
}

// NativeStage reads the PDF text layer.
type NativeStage struct{}

func (NativeStage) Name() string { return "native" }

func (NativeStage) Extract(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			pages = append(pages, strings.TrimSpace(pageText))
		}
	}
	return strings.Join(pages, "\n\n"), nil
}

// ContentStage decodes the text show operators of each page content stream via pdfcpu.
type ContentStage struct{}

func (ContentStage) Name() string { return "pdfcpu" }

var pageFileRe = regexp.MustCompile(`page_(\d+)`)

func (ContentStage) Extract(ctx context.Context, data []byte) (string, error) {
	return withTempPDF(data, func(inFile, outDir string) (string, error) {
		if err := api.ExtractContentFile(inFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
			return "", err
		}
		files, err := pageFiles(outDir)
		if err != nil {
			return "", err
		}
		var pages []string
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			raw, err := os.ReadFile(f)
			if err != nil {
				return "", err
			}
			if text := strings.TrimSpace(decodeContentStream(string(raw))); text != "" {
				pages = append(pages, text)
			}
		}
		return strings.Join(pages, "\n\n"), nil
	})
}

// Recognizer turns an image file into text.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// Tesseract runs the tesseract binary.
type Tesseract struct {
	Path     string
	Language string
}

func (t Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	bin := t.Path
	if bin == "" {
		bin = "tesseract"
	}
	args := []string{imagePath, "stdout"}
	if t.Language != "" {
		args = append(args, "-l", t.Language)
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// OCRStage extracts embedded page images with pdfcpu and recognizes them.
type OCRStage struct {
	Recognizer Recognizer
}

func (OCRStage) Name() string { return "ocr" }

func (s OCRStage) Extract(ctx context.Context, data []byte) (string, error) {
	if s.Recognizer == nil {
		return "", fmt.Errorf("no recognizer configured")
	}
	return withTempPDF(data, func(inFile, outDir string) (string, error) {
		if err := api.ExtractImagesFile(inFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
			return "", err
		}
		files, err := pageFiles(outDir)
		if err != nil {
			return "", err
		}
		var pages []string
		for _, f := range files {
			text, err := s.Recognizer.Recognize(ctx, f)
			if err != nil {
				return "", err
			}
			if strings.TrimSpace(text) != "" {
				pages = append(pages, strings.TrimSpace(text))
			}
		}
		return strings.Join(pages, "\n\n"), nil
	})
}

func withTempPDF(data []byte, fn func(inFile, outDir string) (string, error)) (string, error) {
	dir, err := os.MkdirTemp("", "intellidoc-pdf-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	inFile := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(inFile, data, 0o644); err != nil {
		return "", err
	}
	outDir := filepath.Join(dir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	return fn(inFile, outDir)
}

// pageFiles lists output files ordered by the page number in their names.
func pageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	type pf struct {
		page int
		path string
	}
	var files []pf
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		page := 0
		if m := pageFileRe.FindStringSubmatch(e.Name()); m != nil {
			page, _ = strconv.Atoi(m[1])
		}
		files = append(files, pf{page: page, path: filepath.Join(dir, e.Name())})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].page != files[j].page {
			return files[i].page < files[j].page
		}
		return files[i].path < files[j].path
	})
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	log.Debug().Str("dir", dir).Int("files", len(out)).Msg("pdfcpu output")
	return out, nil
}
