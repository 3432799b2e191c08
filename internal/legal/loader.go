package legal

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"intellidoc/internal/models"
)

//go:embed rules/*.json
var builtin embed.FS

var (
	documentTypeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	ruleExtensions = []string{".json", ".yaml", ".yml"}
)

// Loader reads rule sets from a directory, falling back to the built-in ones.
type Loader struct {
	dir string
}

// NewLoader returns a loader over dir. An empty dir uses only the built-in rules.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

func (l *Loader) Load(documentType string) (*RuleSet, error) {
	if !documentTypeRe.MatchString(documentType) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDocumentType, documentType)
	}

	if l.dir != "" {
		for _, ext := range ruleExtensions {
			p := filepath.Join(l.dir, documentType+ext)
			data, err := os.ReadFile(p)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("rules: %w", err)
			}
			log.Debug().Str("file", p).Msg("loading rules")
			return parse(documentType, data)
		}
	}

	data, err := builtin.ReadFile(path.Join("rules", documentType+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownDocumentType, documentType)
	}
	return parse(documentType, data)
}

// Types lists every document type available from the directory or the built-in set.
func (l *Loader) Types() ([]string, error) {
	seen := map[string]struct{}{}
	entries, err := builtin.ReadDir("rules")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		seen[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = struct{}{}
	}

	if l.dir != "" {
		entries, err := os.ReadDir(l.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("rules: %w", err)
		}
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			name := strings.TrimSuffix(e.Name(), ext)
			if e.IsDir() || !isRuleFile(ext) || !documentTypeRe.MatchString(name) {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// parse decodes JSON or YAML rule files; JSON is read by the YAML decoder.
func parse(documentType string, data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("%w: rules %s: %v", models.ErrInvalidInput, documentType, err)
	}
	rs.DocumentType = documentType
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func isRuleFile(ext string) bool {
	for _, e := range ruleExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
