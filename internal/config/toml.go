// Package config hydrates TOML job configuration and .env process
// configuration into immutable values, as pure functions rather than
// import-time global state (spec §9 "Global mutable registry").
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/mireiodev/gemforge/internal/jobs"
	"github.com/mireiodev/gemforge/internal/scheduler"
)

// ErrConfig is spec §7's CONFIG_ERROR: invalid or missing configuration.
type ErrConfig struct {
	Path string
	Err  error
}

func (e *ErrConfig) Error() string { return fmt.Sprintf("config: %s: %v", e.Path, e.Err) }
func (e *ErrConfig) Unwrap() error { return e.Err }

type rawDocument struct {
	System struct {
		SchedulerMode string `toml:"scheduler_mode"`
	} `toml:"system"`
	Defaults struct {
		Formatters              []string       `toml:"formatters"`
		FormatterFlags          map[string]any `toml:"formatter_flags"`
		OutputPath              string         `toml:"output_path"`
		PreformattedTextColumns int            `toml:"preformatted_text_columns"`
		Interval                string         `toml:"interval"`
	} `toml:"defaults"`
	File map[string]fileEntry `toml:"file"`
	Dir  map[string]dirEntry  `toml:"dir"`
}

type fileEntry struct {
	InputPath               string         `toml:"input_path"`
	OutputPath              string         `toml:"output_path"`
	Formatters              []string       `toml:"formatters"`
	FormatterBlacklist      []string       `toml:"formatter_blacklist"`
	FormatterFlags          map[string]any `toml:"formatter_flags"`
	PreformattedTextColumns int            `toml:"preformatted_text_columns"`
	Heading                 string         `toml:"heading"`
	HeadingEndPattern       string         `toml:"heading_end_pattern"`
	HeadingStripOffset      int            `toml:"heading_strip_offset"`
	Footing                 string         `toml:"footing"`
	FootingEndPattern       string         `toml:"footing_end_pattern"`
	FootingStripOffset      int            `toml:"footing_strip_offset"`
	Interval                string         `toml:"interval"`
}

type dirEntry struct {
	fileEntry
	Recursive bool `toml:"recursive"`
}

// Document is the hydrated result of parsing a TOML job configuration file:
// an immutable scheduler mode plus the jobs to enqueue.
type Document struct {
	SchedulerMode string
	Jobs          []scheduler.Job
}

// ParseFile reads and hydrates a TOML job configuration file per spec §6's
// [system]/[defaults]/[file.<name>]/[dir.<name>] layout.
func ParseFile(path string) (Document, error) {
	var raw rawDocument
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return Document{}, &ErrConfig{Path: path, Err: err}
	}
	return hydrate(raw)
}

func hydrate(raw rawDocument) (Document, error) {
	defaultColumns := raw.Defaults.PreformattedTextColumns
	if defaultColumns == 0 {
		defaultColumns = 80
	}

	doc := Document{SchedulerMode: raw.System.SchedulerMode}

	for name, entry := range raw.File {
		formatters := applyBlacklist(pick(entry.Formatters, raw.Defaults.Formatters), entry.FormatterBlacklist)
		flags := mergeFlags(raw.Defaults.FormatterFlags, entry.FormatterFlags)
		outputPath := entry.OutputPath
		if outputPath == "" {
			outputPath = filepath.Join(raw.Defaults.OutputPath, name+".gmi")
		}
		columns := entry.PreformattedTextColumns
		if columns == 0 {
			columns = defaultColumns
		}

		payload := jobs.FormatterJobPayload{
			JobName:                    name,
			IsDir:                      false,
			InputPath:                  entry.InputPath,
			OutputPath:                 outputPath,
			EnabledFormatters:          formatters,
			FormatterFlags:             flags,
			HeadingText:                entry.Heading,
			HeadingEndPattern:          entry.HeadingEndPattern,
			HeadingStripOffset:         entry.HeadingStripOffset,
			FootingText:                entry.Footing,
			FootingStartPattern:        entry.FootingEndPattern,
			FootingStripOffset:         entry.FootingStripOffset,
			PreformattedUnicodeColumns: columns,
		}
		blob, err := json.Marshal(payload)
		if err != nil {
			return Document{}, fmt.Errorf("config: marshal [file.%s]: %w", name, err)
		}
		doc.Jobs = append(doc.Jobs, scheduler.Job{Name: name, JobType: jobs.JobType, ConfigBlob: blob})
	}

	for name, entry := range raw.Dir {
		formatters := applyBlacklist(pick(entry.Formatters, raw.Defaults.Formatters), entry.FormatterBlacklist)
		flags := mergeFlags(raw.Defaults.FormatterFlags, entry.FormatterFlags)
		outputPath := entry.OutputPath
		if outputPath == "" {
			outputPath = filepath.Join(raw.Defaults.OutputPath, name)
		}
		columns := entry.PreformattedTextColumns
		if columns == 0 {
			columns = defaultColumns
		}

		payload := jobs.FormatterJobPayload{
			JobName:                    name,
			IsDir:                      true,
			IsRecursive:                entry.Recursive,
			InputPath:                  entry.InputPath,
			OutputPath:                 outputPath,
			EnabledFormatters:          formatters,
			FormatterFlags:             flags,
			HeadingText:                entry.Heading,
			HeadingEndPattern:          entry.HeadingEndPattern,
			HeadingStripOffset:         entry.HeadingStripOffset,
			FootingText:                entry.Footing,
			FootingStartPattern:        entry.FootingEndPattern,
			FootingStripOffset:         entry.FootingStripOffset,
			PreformattedUnicodeColumns: columns,
		}
		blob, err := json.Marshal(payload)
		if err != nil {
			return Document{}, fmt.Errorf("config: marshal [dir.%s]: %w", name, err)
		}
		doc.Jobs = append(doc.Jobs, scheduler.Job{Name: name, JobType: jobs.JobType, ConfigBlob: blob})
	}

	return doc, nil
}

func pick(specific, fallback []string) []string {
	if len(specific) > 0 {
		return specific
	}
	return fallback
}

func applyBlacklist(formatters, blacklist []string) []string {
	if len(blacklist) == 0 {
		return formatters
	}
	excluded := make(map[string]bool, len(blacklist))
	for _, b := range blacklist {
		excluded[b] = true
	}
	out := make([]string, 0, len(formatters))
	for _, f := range formatters {
		if !excluded[f] {
			out = append(out, f)
		}
	}
	return out
}

func mergeFlags(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
