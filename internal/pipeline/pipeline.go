package pipeline

import (
	"regexp"
	"strings"
	"sync"

	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/pluginregistry"
)

// Pipeline formats documents against a fixed plugin Registry. It is stateless
// across calls to Format: each call constructs a fresh Flags, matching spec
// §4.2's "stateful within a single document" contract.
type Pipeline struct {
	registry *pluginregistry.Registry
	log      logging.Logger
}

// New builds a Pipeline over registry. log may be nil, in which case a
// discard logger is used.
func New(registry *pluginregistry.Registry, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Discard()
	}
	return &Pipeline{registry: registry, log: log}
}

// Format runs the full pipeline over doc: preprocess, then the per-line loop
// with multiline dispatch (spec §4.2, stages 1-2).
func (p *Pipeline) Format(doc []string, cfg Config) []string {
	working := p.applyPreprocessors(doc, cfg)

	var (
		buffer []string
		output []string
	)
	flags := &Flags{}

	for _, line := range working {
		working := line

		if strings.HasPrefix(working, "```") {
			flags.InPreformat = !flags.InPreformat
		}

		working = p.applyLineFormatters(working, cfg, flags)

		if isWhitespace(working) && len(flags.BufferUntilEmptyLine) > 0 {
			output = append(output, flags.BufferUntilEmptyLine...)
			flags.BufferUntilEmptyLine = nil
		}

		if !flags.InMultiline {
			for _, name := range cfg.EnabledFormatters {
				formatter, ok := p.registry.Multiline(name)
				if !ok {
					continue
				}
				if matches(formatter.StartPattern(), working) {
					flags.InMultiline = true
					flags.ActiveMultilineFormatter = formatter.Name()
					break
				}
			}
		}

		if flags.InMultiline && flags.ActiveMultilineFormatter != "" {
			active, ok := p.registry.Multiline(flags.ActiveMultilineFormatter)
			if !ok {
				flags.InMultiline = false
				flags.ActiveMultilineFormatter = ""
				output = append(output, working)
				continue
			}
			if matches(active.EndPattern(), working) {
				flags.InMultiline = false
				flags.ActiveMultilineFormatter = ""
				output = append(output, active.Apply(buffer, cfg, flags)...)
				buffer = nil
				continue
			}
			buffer = append(buffer, working)
			continue
		}

		output = append(output, working)
	}

	// Flush any unterminated multiline block instead of silently dropping it
	// (spec §4.2, "edge cases to preserve").
	if len(buffer) > 0 {
		if active, ok := p.registry.Multiline(flags.ActiveMultilineFormatter); ok {
			output = append(output, active.Apply(buffer, cfg, flags)...)
		} else {
			output = append(output, buffer...)
		}
	}
	if len(flags.BufferUntilEmptyLine) > 0 {
		output = append(output, flags.BufferUntilEmptyLine...)
	}

	return output
}

func (p *Pipeline) applyPreprocessors(doc []string, cfg Config) []string {
	working := doc
	for _, name := range cfg.EnabledFormatters {
		pre, ok := p.registry.Preprocessor(name)
		if !ok {
			continue
		}
		working = pre.Apply(working, cfg)
	}
	return working
}

func (p *Pipeline) applyLineFormatters(line string, cfg Config, flags *Flags) string {
	for _, name := range cfg.EnabledFormatters {
		f, ok := p.registry.Line(name)
		if !ok {
			p.log.Warn("formatter not found", "name", name)
			continue
		}
		line = f.Apply(line, flags)
	}
	return line
}

func isWhitespace(s string) bool {
	if s == "" {
		return false
	}
	return strings.TrimSpace(s) == ""
}

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

func matches(pattern, line string) bool {
	patternCacheMu.Lock()
	re, ok := patternCache[pattern]
	patternCacheMu.Unlock()
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		patternCacheMu.Lock()
		patternCache[pattern] = re
		patternCacheMu.Unlock()
	}
	return re.MatchString(line)
}
