// Package jobs supplies the concrete job runners registered against
// internal/jobrunner at process construction time.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mireiodev/gemforge/internal/jobrunner"
	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/pipeline"
	"github.com/mireiodev/gemforge/internal/pluginregistry"
	"github.com/mireiodev/gemforge/internal/queue"
)

// ErrConfig is the formatter job's own CONFIG_ERROR-class error (spec §7:
// "Missing input/output path ⇒ CONFIG_ERROR"). It mirrors
// internal/config.ErrConfig's Err/Error/Unwrap shape, with JobName in place
// of Path, rather than importing that package: internal/config sits above internal/jobs in the
// module's dependency order, so importing it here would invert it.
type ErrConfig struct {
	JobName string
	Err     error
}

func (e *ErrConfig) Error() string {
	return fmt.Sprintf("jobs: %s: %v", e.JobName, e.Err)
}

func (e *ErrConfig) Unwrap() error { return e.Err }

var (
	errMissingInputPath  = errors.New("missing input_path")
	errMissingOutputPath = errors.New("missing output_path")
)

// Register wires the formatter runner into runnerReg, closing over the
// shared pipeline/registry/logger every invocation needs (spec §9's
// construction-time wiring, avoiding the import-time global registry).
func Register(runnerReg *jobrunner.Registry, pipe *pipeline.Pipeline, reg *pluginregistry.Registry, log logging.Logger) {
	jobrunner.Register(runnerReg, JobType, DecodePayload, func(row queue.JobRow, payload FormatterJobPayload, store queue.Store) jobrunner.Runnable {
		return New(row, payload, store, pipe, reg, log)
	})
}

// JobType is the built-in formatter runner's queue.JobRow.JobType value.
const JobType = "formatter"

// FormatterJobPayload is the decoded contents of a formatter job's
// config_blob.
type FormatterJobPayload struct {
	JobName  string `json:"jobname"`
	IsDir    bool   `json:"is_dir"`
	IsRecursive bool `json:"is_recursive"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`

	EnabledFormatters []string       `json:"enabled_formatters"`
	FormatterFlags    map[string]any `json:"formatter_flags"`

	HeadingText        string `json:"heading"`
	HeadingEndPattern  string `json:"heading_end_pattern"`
	HeadingStripOffset int    `json:"heading_strip_offset"`

	FootingText         string `json:"footing"`
	FootingStartPattern string `json:"footing_start_pattern"`
	FootingStripOffset  int    `json:"footing_strip_offset"`

	PreformattedUnicodeColumns int `json:"preformatted_unicode_columns"`
}

// DecodePayload implements jobrunner.DecodeFunc for FormatterJobPayload.
func DecodePayload(blob []byte) (FormatterJobPayload, error) {
	var p FormatterJobPayload
	if err := json.Unmarshal(blob, &p); err != nil {
		return FormatterJobPayload{}, fmt.Errorf("decode formatter payload: %w", err)
	}
	if p.PreformattedUnicodeColumns == 0 {
		p.PreformattedUnicodeColumns = 80
	}
	return p, nil
}

func (p FormatterJobPayload) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		JobName:                    p.JobName,
		HeadingText:                p.HeadingText,
		HeadingEndPattern:          p.HeadingEndPattern,
		HeadingStripOffset:         p.HeadingStripOffset,
		FootingText:                p.FootingText,
		FootingStartPattern:        p.FootingStartPattern,
		FootingStripOffset:         p.FootingStripOffset,
		PreformattedUnicodeColumns: p.PreformattedUnicodeColumns,
		EnabledFormatters:          p.EnabledFormatters,
		FormatterFlags:             p.FormatterFlags,
	}
}

// FormatterRunner runs the built-in "formatter" job: directory jobs fan out
// into per-file sibling rows (spec §4.3); file jobs run the pipeline
// directly via runSingle, mirroring the original's converter/formatter
// split (SPEC_FULL §4.3).
type FormatterRunner struct {
	row     queue.JobRow
	payload FormatterJobPayload
	store   queue.Store
	pipe    *pipeline.Pipeline
	reg     *pluginregistry.Registry
	log     logging.Logger
}

// New constructs a FormatterRunner for row/payload, bound to store for
// fan-out enqueues and pipe for single-file conversion.
func New(row queue.JobRow, payload FormatterJobPayload, store queue.Store, pipe *pipeline.Pipeline, reg *pluginregistry.Registry, log logging.Logger) *FormatterRunner {
	if log == nil {
		log = logging.Discard()
	}
	return &FormatterRunner{row: row, payload: payload, store: store, pipe: pipe, reg: reg, log: log}
}

func (r *FormatterRunner) Payload() FormatterJobPayload { return r.payload }

func (r *FormatterRunner) Setup(ctx context.Context) error {
	if r.payload.InputPath == "" {
		return &ErrConfig{JobName: r.payload.JobName, Err: errMissingInputPath}
	}
	if r.payload.OutputPath == "" {
		return &ErrConfig{JobName: r.payload.JobName, Err: errMissingOutputPath}
	}
	if len(r.payload.EnabledFormatters) == 0 {
		r.log.Warn("debug: formatter without enabled formatters")
	}
	for _, name := range r.payload.EnabledFormatters {
		if !r.reg.AllNames()[name] {
			r.log.Warn("formatter not found", "name", name, "job", r.payload.JobName)
		}
	}
	return nil
}

func (r *FormatterRunner) Cleanup(context.Context) error { return nil }

// ShouldRerun reports whether a failed Run should be retried. Fan-out
// enqueue failures are transient (queue write failed); single-file
// conversion failures are not retried, mirroring the original's
// one-shot apply_formatting_to_file semantics.
func (r *FormatterRunner) ShouldRerun() bool { return r.payload.IsDir }

func (r *FormatterRunner) Run(ctx context.Context) error {
	if r.payload.IsDir {
		return r.runFanOut(ctx)
	}
	return r.runSingle(ctx, r.payload.InputPath, r.payload.OutputPath, r.payload.JobName)
}

// runFanOut enumerates files under InputPath (glob "*.md*", optionally
// recursive) and enqueues one non-recursive per-file row per discovered
// path. The fan-out row itself completes once enqueuing is done; sibling
// outcomes are independent (spec §4.3).
func (r *FormatterRunner) runFanOut(ctx context.Context) error {
	files, err := collectFiles(r.payload.InputPath, r.payload.IsRecursive)
	if err != nil {
		return fmt.Errorf("enumerate files under %s: %w", r.payload.InputPath, err)
	}

	for _, file := range files {
		child := r.payload
		child.IsDir = false
		child.IsRecursive = false
		child.InputPath = file
		child.OutputPath = filepath.Join(r.payload.OutputPath, stem(file)+".gmi")
		child.JobName = fmt.Sprintf("%s(%s)", r.payload.JobName, file)

		blob, err := json.Marshal(child)
		if err != nil {
			return fmt.Errorf("marshal fan-out payload for %s: %w", file, err)
		}
		if err := r.store.Add(ctx, &queue.JobRow{
			Name:       child.JobName,
			JobType:    JobType,
			ConfigBlob: blob,
			Priority:   r.row.Priority,
		}); err != nil {
			return fmt.Errorf("enqueue fan-out row for %s: %w", file, err)
		}
	}
	r.log.Info("fanned out directory job", "job", r.payload.JobName, "files", len(files))
	return nil
}

func (r *FormatterRunner) runSingle(_ context.Context, inputPath, outputPath, jobName string) error {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", inputPath, err)
	}

	out := r.pipe.Format(splitLines(string(raw)), r.payload.pipelineConfig())

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", outputPath, err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputPath, err)
	}
	defer f.Close()
	for _, line := range out {
		if _, err := f.WriteString(line); err != nil {
			return fmt.Errorf("write %s: %w", outputPath, err)
		}
	}
	r.log.Info("converted file", "job", jobName, "input", inputPath, "output", outputPath)
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// splitLines splits s into lines, keeping the trailing newline on every
// line except a non-terminated final one.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

// collectFiles globs *.md* under root, optionally recursively.
func collectFiles(root string, recursive bool) ([]string, error) {
	var out []string
	if recursive {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if matched, _ := filepath.Match("*.md*", d.Name()); matched {
				out = append(out, path)
			}
			return nil
		})
		return out, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matched, _ := filepath.Match("*.md*", e.Name()); matched {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	return out, nil
}
