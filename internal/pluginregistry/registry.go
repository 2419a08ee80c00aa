// Package pluginregistry holds the process-wide (but explicitly constructed,
// per spec §9's "re-architect as explicit objects") maps of formatter
// plugins by name, ordered by ascending priority.
package pluginregistry

import "sort"

// Priority levels, mirroring the teacher's original ordering convention
// (original_source/chandragen/formatters/types.py):
//
//	0   Critical           - preprocess metadata, fix anything outright broken
//	1   Structural cleanup - fix anything that looks weird but is overall fine
//	2   Content formatters - convert in-line formatting
//	3   Cosmetic           - fix minor style issues
//	4   Postprocessors     - small, minor tweaks to the final document
//	5   Optional           - clean up minor formatting issues
//	255 DontCare           - default for order-independent formatters
const DontCare = 255

// LineFormatter transforms a single line. Must be idempotent on
// already-converted output (spec §4.2).
type LineFormatter interface {
	Name() string
	Description() string
	ValidTypes() []string
	Priority() int
	Apply(line string, flags *Flags) string
}

// MultilineFormatter transforms a buffered block of lines delimited by
// StartPattern/EndPattern regexes.
type MultilineFormatter interface {
	Name() string
	Description() string
	ValidTypes() []string
	Priority() int
	StartPattern() string
	EndPattern() string
	Apply(buffer []string, cfg Config, flags *Flags) []string
}

// DocumentPreprocessor transforms the whole document before the line loop.
type DocumentPreprocessor interface {
	Name() string
	Description() string
	ValidTypes() []string
	Priority() int
	Apply(document []string, cfg Config) []string
}

// Flags is the per-document mutable pipeline state (spec §3,
// "FormatterFlags"): created fresh per document, never shared across
// documents. It lives here, rather than in internal/pipeline, because
// plugins in internal/formatterplugins depend only on this package, not on
// the pipeline that drives them (spec §9's topological ordering).
type Flags struct {
	InPreformat              bool
	InMultiline              bool
	ActiveMultilineFormatter string
	BufferUntilEmptyLine     []string
}

// Config mirrors the handful of FormatterConfig fields plugins need.
type Config interface {
	PreformattedColumns() int
	Heading() (text string, endPattern string, offset int, ok bool)
	Footing() (text string, startPattern string, offset int, ok bool)
}

// Registry holds the three name->instance maps plus their priority order.
type Registry struct {
	line         map[string]LineFormatter
	multiline    map[string]MultilineFormatter
	preprocessor map[string]DocumentPreprocessor

	lineOrder         []string
	multilineOrder    []string
	preprocessorOrder []string
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		line:         make(map[string]LineFormatter),
		multiline:    make(map[string]MultilineFormatter),
		preprocessor: make(map[string]DocumentPreprocessor),
	}
}

// RegisterLine registers (or replaces) a line formatter by name.
func (r *Registry) RegisterLine(f LineFormatter) {
	r.line[f.Name()] = f
	r.lineOrder = sortedNames(r.line, func(n string) int { return r.line[n].Priority() })
}

// RegisterMultiline registers (or replaces) a multiline formatter by name.
func (r *Registry) RegisterMultiline(f MultilineFormatter) {
	r.multiline[f.Name()] = f
	r.multilineOrder = sortedNames(r.multiline, func(n string) int { return r.multiline[n].Priority() })
}

// RegisterPreprocessor registers (or replaces) a document preprocessor by name.
func (r *Registry) RegisterPreprocessor(f DocumentPreprocessor) {
	r.preprocessor[f.Name()] = f
	r.preprocessorOrder = sortedNames(r.preprocessor, func(n string) int { return r.preprocessor[n].Priority() })
}

func sortedNames[T any](m map[string]T, priority func(string) int) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.SliceStable(names, func(i, j int) bool {
		return priority(names[i]) < priority(names[j])
	})
	return names
}

// Line looks up a registered line formatter by name.
func (r *Registry) Line(name string) (LineFormatter, bool) { f, ok := r.line[name]; return f, ok }

// Multiline looks up a registered multiline formatter by name.
func (r *Registry) Multiline(name string) (MultilineFormatter, bool) {
	f, ok := r.multiline[name]
	return f, ok
}

// Preprocessor looks up a registered document preprocessor by name.
func (r *Registry) Preprocessor(name string) (DocumentPreprocessor, bool) {
	f, ok := r.preprocessor[name]
	return f, ok
}

// LineNames returns registered line formatter names in priority order.
func (r *Registry) LineNames() []string { return append([]string(nil), r.lineOrder...) }

// MultilineNames returns registered multiline formatter names in priority order.
func (r *Registry) MultilineNames() []string { return append([]string(nil), r.multilineOrder...) }

// PreprocessorNames returns registered preprocessor names in priority order.
func (r *Registry) PreprocessorNames() []string {
	return append([]string(nil), r.preprocessorOrder...)
}

// AllNames returns every registered plugin name across the three kinds,
// used by the formatter runner to warn about unknown enabled_formatters
// entries (spec §4.3).
func (r *Registry) AllNames() map[string]bool {
	all := make(map[string]bool, len(r.line)+len(r.multiline)+len(r.preprocessor))
	for n := range r.line {
		all[n] = true
	}
	for n := range r.multiline {
		all[n] = true
	}
	for n := range r.preprocessor {
		all[n] = true
	}
	return all
}
