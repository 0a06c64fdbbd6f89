package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadEmptyPathIsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Empty(t, cfg.Validate())
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "run.json", `{
		"input": {"path": "in/contacts.csv"},
		"split": {"mode": "ranged", "start": 10, "end": 20, "batch": 5},
		"ledger": {"kind": "sqlite", "dsn": "runs.db"}
	}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "in/contacts.csv", cfg.Input.Path)
	assert.Equal(t, Split{Mode: "ranged", ChunkSize: DefaultChunkSize, Start: 10, End: 20, Batch: 5}, cfg.Split)
	assert.Equal(t, "sqlite", cfg.Ledger.Kind)
	// untouched sections keep their defaults
	assert.Equal(t, "work email", cfg.Columns.Value)
	assert.Len(t, cfg.Rules.BlockKeywords, 17)
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "run.yaml", `
input:
  path: in/x.csv
rules:
  block_keywords: [spam]
dedupe:
  enabled: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "in/x.csv", cfg.Input.Path)
	assert.Equal(t, []string{"spam"}, cfg.Rules.BlockKeywords)
	assert.True(t, cfg.Dedupe.Enabled)
	assert.Equal(t, 1_000_000, cfg.Dedupe.Window)
}

func TestLoadEmptyYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := map[string]string{
		"unknown_json_field": writeFile(t, "bad.json", `{"inptu": {}}`),
		"unknown_yaml_field": writeFile(t, "bad.yaml", "inptu: {}\n"),
		"bad_extension":      writeFile(t, "run.toml", "x = 1"),
		"missing_file":       filepath.Join(t.TempDir(), "nope.json"),
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(p)
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvInputPath:     " /data/in.csv ",
		EnvOutputDir:     "/data/out",
		EnvSplitSize:     "500",
		EnvLedgerDSN:     "postgres://x",
		EnvPublishAccess: "ak",
		EnvPublishSecret: "sk",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) string { return env[k] }))
	assert.Equal(t, "/data/in.csv", cfg.Input.Path)
	assert.Equal(t, "/data/out", cfg.Output.Dir)
	assert.Equal(t, 500, cfg.Split.ChunkSize)
	assert.Equal(t, "postgres://x", cfg.Ledger.DSN)
	assert.Equal(t, "ak", cfg.Publish.AccessKey)
	assert.Equal(t, "sk", cfg.Publish.SecretKey)
}

func TestApplyEnvSplitSizeInRangedMode(t *testing.T) {
	cfg := Default()
	cfg.Split.Mode = "ranged"
	require.NoError(t, cfg.ApplyEnv(func(k string) string {
		if k == EnvSplitSize {
			return "7"
		}
		return ""
	}))
	assert.Equal(t, 7, cfg.Split.Batch)
	assert.Equal(t, DefaultChunkSize, cfg.Split.ChunkSize)
}

func TestApplyEnvRejectsBadSplitSize(t *testing.T) {
	for _, v := range []string{"abc", "0", "-3"} {
		cfg := Default()
		err := cfg.ApplyEnv(func(k string) string {
			if k == EnvSplitSize {
				return v
			}
			return ""
		})
		assert.Error(t, err, v)
	}
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "CSVSPLIT_TEST_DOTENV=from-file\nCSVSPLIT_TEST_PRESET=from-file\n")
	t.Setenv("CSVSPLIT_TEST_PRESET", "from-env")
	t.Setenv("CSVSPLIT_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("CSVSPLIT_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(p))
	assert.Equal(t, "from-file", os.Getenv("CSVSPLIT_TEST_DOTENV"))
	assert.Equal(t, "from-env", os.Getenv("CSVSPLIT_TEST_PRESET"), "existing variables win")

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, LoadDotEnv(""))
}

func TestOutputDirAndBaseName(t *testing.T) {
	cfg := Default()
	cfg.Input.Path = "/data/Main File.v2.csv"
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)

	assert.Equal(t, "Main File.v2", cfg.BaseName())
	assert.Equal(t, filepath.Join("uploads", "splits", "Main File.v2_20240309070501"), cfg.OutputDir(now))

	cfg.Output.Dir = "/explicit"
	assert.Equal(t, "/explicit", cfg.OutputDir(now))
	cfg.Output.BaseName = "b"
	assert.Equal(t, "b", cfg.BaseName())
}

func TestCommaRune(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ',', cfg.CommaRune())
	cfg.Input.Comma = ";"
	assert.Equal(t, ';', cfg.CommaRune())
	cfg.Input.Comma = ""
	assert.Equal(t, ',', cfg.CommaRune())
}
