package formatterplugins

import (
	"regexp"
	"strings"

	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

// MDX-specific line formatters: naive JSX/MDX stripping, grounded on
// original_source/chandragen/formatters/line_formatters.py's "MDX
// Converters" section. Each declares ValidTypes()==["mdx"], same as the
// original. The pipeline does not consult ValidTypes: a formatter listed in
// a config's formatters is applied to every document of that job, whatever
// its type.

type stripImportsExports struct{}

func (stripImportsExports) Name() string         { return "strip_imports_exports" }
func (stripImportsExports) ValidTypes() []string { return []string{"mdx"} }
func (stripImportsExports) Priority() int        { return pluginregistry.DontCare }
func (stripImportsExports) Description() string {
	return "Removes a line if it's a JSX import or export statement."
}

func (stripImportsExports) Apply(line string, _ *pluginregistry.Flags) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export ") {
		return ""
	}
	return line
}

type stripJSXTags struct{}

func (stripJSXTags) Name() string         { return "strip_jsx_tags" }
func (stripJSXTags) ValidTypes() []string { return []string{"mdx"} }
func (stripJSXTags) Priority() int        { return pluginregistry.DontCare }
func (stripJSXTags) Description() string {
	return "Naively removes lines starting with '<' that aren't a doctype or HTML comment."
}

func (stripJSXTags) Apply(line string, _ *pluginregistry.Flags) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "<") && !strings.HasPrefix(trimmed, "<!--") && !strings.HasPrefix(trimmed, "<!DOCTYPE") {
		return ""
	}
	return line
}

type stripJSXExpressions struct{}

func (stripJSXExpressions) Name() string         { return "strip_jsx_expressions" }
func (stripJSXExpressions) ValidTypes() []string { return []string{"mdx"} }
func (stripJSXExpressions) Priority() int        { return pluginregistry.DontCare }
func (stripJSXExpressions) Description() string {
	return "Naively strips anything enclosed by curly braces. May break unrelated content."
}

var jsxExpressionPattern = regexp.MustCompile(`\{.*?\}`)

func (stripJSXExpressions) Apply(line string, _ *pluginregistry.Flags) string {
	return jsxExpressionPattern.ReplaceAllString(line, "")
}

type convertKnownMDXComponents struct{}

func (convertKnownMDXComponents) Name() string         { return "convert_known_mdx_components" }
func (convertKnownMDXComponents) ValidTypes() []string { return []string{"mdx"} }
func (convertKnownMDXComponents) Priority() int        { return pluginregistry.DontCare }
func (convertKnownMDXComponents) Description() string {
	return "Replaces known MDX note/warning components with plain-text NOTE:/WARNING: markers."
}

var mdxComponentReplacements = []struct{ jsx, gem string }{
	{"<Note>", "NOTE:"},
	{"</Note>", ""},
	{"<Warning>", "WARNING:"},
	{"</Warning>", ""},
}

func (convertKnownMDXComponents) Apply(line string, _ *pluginregistry.Flags) string {
	for _, r := range mdxComponentReplacements {
		line = strings.ReplaceAll(line, r.jsx, r.gem)
	}
	return line
}
