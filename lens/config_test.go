package lens

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`dir: ./src
mode: all
alias: Gen
yield: emit
write: true
cachemb: 64
session: nightly
`), 0o644))

	var config Config
	require.NoError(t, LoadConfigFile(path, &config))
	assert.Equal(t, "./src", config.TargetDir)
	assert.Equal(t, "all", config.Mode)
	assert.Equal(t, "Gen", config.CoroutineAlias)
	assert.Equal(t, "emit", config.YieldIdent)
	assert.True(t, config.Write)
	assert.Equal(t, 64, config.CacheMB)
	assert.Equal(t, "nightly", config.SessionLabel)
}

func TestLoadConfigFilePartial(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: none\n"), 0o644))

	config := Config{TargetDir: "./keep", CacheMB: 32}
	require.NoError(t, LoadConfigFile(path, &config))
	assert.Equal(t, "none", config.Mode)
	assert.Equal(t, "./keep", config.TargetDir, "fields absent from the file stay untouched")
	assert.Equal(t, 32, config.CacheMB)
}

func TestLoadConfigFileErrors(t *testing.T) {
	t.Parallel()

	var config Config
	require.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"), &config))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dir: [unclosed\n"), 0o644))
	require.Error(t, LoadConfigFile(path, &config))
}

func TestConfigEngineOptions(t *testing.T) {
	t.Parallel()

	config := Config{CoroutineAlias: "Gen", YieldIdent: "emit"}
	opts := config.EngineOptions()
	assert.Equal(t, "Gen", opts.CoroutineAlias)
	assert.Equal(t, "emit", opts.YieldIdent)

	opts.applyDefaults()
	assert.Equal(t, DefaultHandleIdent, opts.HandleIdent)
}
