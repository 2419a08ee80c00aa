// Package pipeline implements the stateful, per-document formatter
// pipeline: preprocess -> line loop -> multiline dispatch (spec §4.2).
package pipeline

import "github.com/mireiodev/gemforge/internal/pluginregistry"

// Flags is an alias for pluginregistry.Flags: the per-document mutable
// pipeline state plugins read and write.
type Flags = pluginregistry.Flags

// Config houses a single formatter pipeline invocation's configuration
// (spec §3, "FormatterJobPayload" distilled down to one document's worth of
// settings).
type Config struct {
	JobName string

	HeadingText        string
	HeadingEndPattern  string
	HeadingStripOffset int

	FootingText         string
	FootingStartPattern string
	FootingStripOffset  int

	PreformattedUnicodeColumns int

	EnabledFormatters []string
	FormatterFlags    map[string]any
}

// PreformattedColumns implements pluginregistry.Config.
func (c Config) PreformattedColumns() int { return c.PreformattedUnicodeColumns }

// Heading implements pluginregistry.Config.
func (c Config) Heading() (text string, endPattern string, offset int, ok bool) {
	if c.HeadingText == "" || c.HeadingEndPattern == "" {
		return "", "", 0, false
	}
	return c.HeadingText, c.HeadingEndPattern, c.HeadingStripOffset, true
}

// Footing implements pluginregistry.Config.
func (c Config) Footing() (text string, startPattern string, offset int, ok bool) {
	if c.FootingText == "" || c.FootingStartPattern == "" {
		return "", "", 0, false
	}
	return c.FootingText, c.FootingStartPattern, c.FootingStripOffset, true
}
