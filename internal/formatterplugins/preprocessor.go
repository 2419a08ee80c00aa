package formatterplugins

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

var (
	headingPatternMu sync.Mutex
	headingPatterns  = map[string]*regexp.Regexp{}
)

func matches(pattern, line string) bool {
	headingPatternMu.Lock()
	re, ok := headingPatterns[pattern]
	headingPatternMu.Unlock()
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		headingPatternMu.Lock()
		headingPatterns[pattern] = re
		headingPatternMu.Unlock()
	}
	return re.MatchString(line)
}

type stripHeading struct{}

func (stripHeading) Name() string        { return "strip_heading" }
func (stripHeading) ValidTypes() []string { return []string{"md", "mdx"} }
func (stripHeading) Priority() int        { return 0 }
func (stripHeading) Description() string {
	return "Removes the document down to a matched line, replacing it with a configured heading."
}

// Apply replaces everything from the top of the document down to (and
// including, modulo offset) the line matching cfg.Heading's end pattern,
// with the configured heading text. Leaves the document untouched if no
// heading is configured or the pattern is never found (spec §4.2's
// "named plugin not found ⇒ warning and skip" extends to malformed config).
func (stripHeading) Apply(document []string, cfg pluginregistry.Config) []string {
	text, endPattern, offset, ok := cfg.Heading()
	if !ok {
		return document
	}
	idx := indexMatching(document, endPattern)
	if idx < 0 {
		return document
	}
	cut := idx + offset
	if cut < 0 {
		cut = 0
	}
	if cut > len(document) {
		cut = len(document)
	}
	heading := splitKeepEnds(text)
	out := make([]string, 0, len(heading)+len(document)-cut)
	out = append(out, heading...)
	out = append(out, document[cut:]...)
	return out
}

type stripFooting struct{}

func (stripFooting) Name() string        { return "strip_footing" }
func (stripFooting) ValidTypes() []string { return []string{"md", "mdx"} }
func (stripFooting) Priority() int        { return 0 }
func (stripFooting) Description() string {
	return "Removes the document from a matched line onward, replacing it with a configured footing."
}

func (stripFooting) Apply(document []string, cfg pluginregistry.Config) []string {
	text, startPattern, offset, ok := cfg.Footing()
	if !ok {
		return document
	}
	idx := indexMatching(document, startPattern)
	if idx < 0 {
		return document
	}
	cut := idx + offset
	if cut < 0 {
		cut = 0
	}
	if cut > len(document) {
		cut = len(document)
	}
	footing := splitKeepEnds(text)
	out := make([]string, 0, cut+len(footing))
	out = append(out, document[:cut]...)
	out = append(out, footing...)
	return out
}

type convertFrontmatter struct{}

func (convertFrontmatter) Name() string         { return "convert_frontmatter" }
func (convertFrontmatter) ValidTypes() []string { return []string{"md", "mdx"} }
func (convertFrontmatter) Priority() int        { return 0 }
func (convertFrontmatter) Description() string {
	return "Converts a document's --- delimited frontmatter into a gemini-friendly heading and footing."
}

// Apply converts a "---"-delimited frontmatter block's title/description
// (into a heading) and date/author (into a footing). A document with no
// frontmatter, or one whose frontmatter block never closes, is returned
// unchanged.
func (convertFrontmatter) Apply(document []string, _ pluginregistry.Config) []string {
	if len(document) == 0 || !strings.HasPrefix(document[0], "---") {
		return document
	}

	frontmatter := map[string]string{}
	closeIdx := -1
	for i, line := range document[1:] {
		if strings.HasPrefix(line, "---") {
			closeIdx = i
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		frontmatter[unquote(key)] = unquote(value)
	}
	if closeIdx < 0 {
		return document
	}
	body := append([]string(nil), document[2+closeIdx:]...)

	if date, ok := frontmatter["date"]; ok {
		body = append(body, fmt.Sprintf("\n%s\nWritten %s on %s\n", strings.Repeat("-", 20), frontmatter["author"], date))
	}

	if title, ok := frontmatter["title"]; ok {
		header := fmt.Sprintf("\n# %s\n%s\n%s\n\n", title, frontmatter["description"], strings.Repeat("-", 20))
		return append([]string{header}, body...)
	}
	return body
}

// unquote trims surrounding whitespace, then every leading and trailing
// single quote, then every leading and trailing double quote (the quotes
// need not be paired), mirroring the original's strip().strip("'").strip('"').
func unquote(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "'")
	s = strings.Trim(s, `"`)
	return s
}

func indexMatching(document []string, pattern string) int {
	for i, line := range document {
		if matches(pattern, line) {
			return i
		}
	}
	return -1
}

// splitKeepEnds splits s on newlines, keeping the trailing "\n" on every
// line but the last, mirroring Python's str.splitlines(keepends=True).
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.SplitAfter(s, "\n")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
