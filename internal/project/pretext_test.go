package project

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMapping(t *testing.T, outputPath string, m Mapping) {
	t.Helper()
	require.NoError(t, os.MkdirAll(outputPath, 0o755))
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(outputPath, MappingFileName), data, 0o644))
}

func TestLoadMapping(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	writeMapping(t, out, Mapping{"/proj/source/ch1.ptx": {"ch-one", "sec-intro"}})

	m, err := LoadMapping(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"ch-one", "sec-intro"}, m["/proj/source/ch1.ptx"])
}

func TestLoadMappingMissing(t *testing.T) {
	_, err := LoadMapping(t.TempDir())
	assert.Error(t, err)
}

func TestLoadMappingMalformed(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(out, MappingFileName), []byte("not json"), 0o644))

	_, err := LoadMapping(out)
	assert.Error(t, err)
}

func TestMappingLookups(t *testing.T) {
	src := filepath.Join(t.TempDir(), "ch1.ptx")
	m := Mapping{src: {"ch-one", "sec-intro"}}

	assert.Equal(t, []string{"ch-one", "sec-intro"}, m.IDsFor(src))
	assert.Nil(t, m.IDsFor(filepath.Join(t.TempDir(), "other.ptx")))

	found, ok := m.SourceFor("sec-intro")
	require.True(t, ok)
	assert.Equal(t, src, found)

	_, ok = m.SourceFor("nope")
	assert.False(t, ok)
}

func TestPreTeXtOutputPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "output_path: out\nargs: pretext build\nproject_type: PreTeXt\n")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	src := filepath.Join(dir, "ch1.ptx")
	writeMapping(t, cfg.OutputPath, Mapping{src: {"ch-one", "sec-later"}})

	out, ok := cfg.PreTeXtOutputPath(src)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.OutputPath, "ch-one.html"), out,
		"the first id names the page the file opens on")

	_, ok = cfg.PreTeXtOutputPath(filepath.Join(dir, "unmapped.ptx"))
	assert.False(t, ok)
}

func TestPreTeXtOutputPathNoMapping(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, "output_path: out\nargs: pretext build\nproject_type: PreTeXt\n")
	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	_, ok := cfg.PreTeXtOutputPath(filepath.Join(dir, "ch1.ptx"))
	assert.False(t, ok, "a missing mapping falls back to the general path rule")
}
