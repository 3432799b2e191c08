package parser

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"intellidoc/internal/models"
)

// Section is a heading and the rune offset where it starts.
type Section struct {
	Title  string `json:"title"`
	Offset int    `json:"offset"`
}

var (
	articleRe  = regexp.MustCompile(models.ArticleRegex)
	numberedRe = regexp.MustCompile(models.NumberedRegex)
	scheduleRe = regexp.MustCompile(models.ScheduleRegex)
)

// Sections returns the headings of text ordered by offset.
func Sections(text string) []Section {
	seen := map[int]bool{}
	var out []Section
	for _, re := range []*regexp.Regexp{articleRe, numberedRe, scheduleRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			start := m[2]
			if seen[start] {
				continue
			}
			seen[start] = true
			title := strings.Join(strings.Fields(text[m[2]:m[3]]), " ")
			out = append(out, Section{Title: title, Offset: utf8.RuneCountInString(text[:start])})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// SectionAt returns the title of the last section starting at or before offset.
func SectionAt(sections []Section, offset int) string {
	i := sort.Search(len(sections), func(i int) bool { return sections[i].Offset > offset })
	if i == 0 {
		return ""
	}
	return sections[i-1].Title
}
