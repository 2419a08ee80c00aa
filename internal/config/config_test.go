package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mireiodev/gemforge/internal/jobs"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile_FileSection_AppliesDefaultsAndBlacklist(t *testing.T) {
	toml := `
[system]
scheduler_mode = "oneshot"

[defaults]
formatters = ["strip_inline_md_formatting", "normalize_code_blocks"]
output_path = "/out"
preformatted_text_columns = 72

[file.readme]
input_path = "/in/readme.md"
formatter_blacklist = ["normalize_code_blocks"]
`
	path := writeTemp(t, "config.toml", toml)

	doc, err := ParseFile(path)
	require.NoError(t, err)
	require.Equal(t, "oneshot", doc.SchedulerMode)
	require.Len(t, doc.Jobs, 1)

	job := doc.Jobs[0]
	require.Equal(t, jobs.JobType, job.JobType)

	var payload jobs.FormatterJobPayload
	require.NoError(t, json.Unmarshal(job.ConfigBlob, &payload))
	require.Equal(t, []string{"strip_inline_md_formatting"}, payload.EnabledFormatters)
	require.Equal(t, "/in/readme.md", payload.InputPath)
	require.Equal(t, "/out/readme.gmi", payload.OutputPath)
	require.Equal(t, 72, payload.PreformattedUnicodeColumns)
	require.False(t, payload.IsDir)
}

func TestParseFile_DirSection_MarksIsDirWithoutEnumerating(t *testing.T) {
	toml := `
[defaults]
output_path = "/out"

[dir.docs]
input_path = "/in/docs"
recursive = true
`
	path := writeTemp(t, "config.toml", toml)

	doc, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Jobs, 1)

	var payload jobs.FormatterJobPayload
	require.NoError(t, json.Unmarshal(doc.Jobs[0].ConfigBlob, &payload))
	require.True(t, payload.IsDir)
	require.True(t, payload.IsRecursive)
	require.Equal(t, "/out/docs", payload.OutputPath)
}

func TestParseFile_MissingFile_ReturnsConfigError(t *testing.T) {
	_, err := ParseFile("/nonexistent/path.toml")
	var cfgErr *ErrConfig
	require.ErrorAs(t, err, &cfgErr)
}

func TestLoadEnv_RequiresDBURL(t *testing.T) {
	path := writeTemp(t, ".env", "log_level=debug\n")
	_, err := LoadEnv(path)
	require.Error(t, err)
}

func TestLoadEnv_ParsesKnownKeysCaseInsensitively(t *testing.T) {
	path := writeTemp(t, ".env", "DB_URL=postgres://x\nMAX_WORKERS_PER_POOL=16\nTICK_RATE=0.25\n# comment\n")
	env, err := LoadEnv(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://x", env.DBURL)
	require.Equal(t, 16, env.MaxWorkersPerPool)
	require.Equal(t, 250_000_000.0, float64(env.TickRate))
}
