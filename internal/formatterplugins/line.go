// Package formatterplugins supplies the built-in line, multiline, and
// document-preprocessor formatters, and a hook for loading more from
// external Go plugins.
package formatterplugins

import (
	"regexp"
	"strings"

	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

// RegisterBuiltins registers every plugin in this package into reg.
func RegisterBuiltins(reg *pluginregistry.Registry) {
	reg.RegisterLine(stripInlineMDFormatting{})
	reg.RegisterLine(convertBulletPointLinks{})
	reg.RegisterLine(normalizeCodeBlocks{})
	reg.RegisterLine(stripImportsExports{})
	reg.RegisterLine(stripJSXTags{})
	reg.RegisterLine(stripJSXExpressions{})
	reg.RegisterLine(convertKnownMDXComponents{})

	reg.RegisterMultiline(formatTablesAsUnicode{})

	reg.RegisterPreprocessor(stripHeading{})
	reg.RegisterPreprocessor(stripFooting{})
	reg.RegisterPreprocessor(convertFrontmatter{})
}

type stripInlineMDFormatting struct{}

func (stripInlineMDFormatting) Name() string        { return "strip_inline_md_formatting" }
func (stripInlineMDFormatting) ValidTypes() []string { return []string{"md", "mdx"} }
func (stripInlineMDFormatting) Priority() int        { return pluginregistry.DontCare }
func (stripInlineMDFormatting) Description() string {
	return "Strips inline markdown bold/italic sequences; naive, leaves preformatted text untouched."
}

var inlineMDPattern = regexp.MustCompile(`\*\*\*|\*\*|\*|___|__|_`)

// Apply strips bold/italic markers from everything but the line's first two
// bytes, mirroring the original's slice-and-splice approach.
func (stripInlineMDFormatting) Apply(line string, flags *pluginregistry.Flags) string {
	if flags.InPreformat {
		return line
	}
	if len(line) <= 2 {
		return inlineMDPattern.ReplaceAllString(line, "")
	}
	return line[:2] + inlineMDPattern.ReplaceAllString(line[2:], "")
}

type convertBulletPointLinks struct{}

func (convertBulletPointLinks) Name() string        { return "convert_bullet_point_links" }
func (convertBulletPointLinks) ValidTypes() []string { return []string{"md", "mdx"} }
func (convertBulletPointLinks) Priority() int        { return pluginregistry.DontCare }
func (convertBulletPointLinks) Description() string {
	return "Converts a markdown bullet-point link line into a gemtext link line."
}

func (convertBulletPointLinks) Apply(line string, _ *pluginregistry.Flags) string {
	if !strings.HasPrefix(line, "- [") {
		return line
	}
	rest := strings.TrimSuffix(line[3:], "\n")
	label, url, ok := strings.Cut(rest, "](")
	if !ok {
		return line
	}
	url = strings.TrimSuffix(url, ")")
	return "=> " + url + " " + label + "\n"
}

type normalizeCodeBlocks struct{}

func (normalizeCodeBlocks) Name() string        { return "normalize_code_blocks" }
func (normalizeCodeBlocks) ValidTypes() []string { return []string{"md", "mdx"} }
func (normalizeCodeBlocks) Priority() int        { return pluginregistry.DontCare }
func (normalizeCodeBlocks) Description() string {
	return "Strips any language hint off a fenced code block to match the gemini preformat standard."
}

func (normalizeCodeBlocks) Apply(line string, _ *pluginregistry.Flags) string {
	if !strings.HasPrefix(line, "```") {
		return line
	}
	return "```\n"
}
