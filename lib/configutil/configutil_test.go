package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl  string `json:"base_url"`
	Timeout  int    `json:"timeout"`
	StateDir string `json:"state_dir"`
}

func writeFile(t testing.TB, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestLocalName(t *testing.T) {
	require.Equal(t, filepath.Join("dir", "hrexport.local.json5"), LocalName(filepath.Join("dir", "hrexport.json5")))
	require.Equal(t, "noext.local.", LocalName("noext"))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "hrexport.json5")

	_, err := ReadConfig[testConfig](name)
	require.True(t, os.IsNotExist(err))

	writeFile(t, name, `{
		// comments are allowed
		base_url: "https://www.hackerrank.com",
		timeout: 30,
	}`)
	cfg, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{BaseUrl: "https://www.hackerrank.com", Timeout: 30}, cfg)

	writeFile(t, LocalName(name), `{timeout: 5, state_dir: "state"}`)
	cfg, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{
		BaseUrl:  "https://www.hackerrank.com",
		Timeout:  5,
		StateDir: "state",
	}, cfg)
}

func TestReadConfigMalformed(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "hrexport.json5")
	writeFile(t, name, `{base_url: `)

	_, err := ReadConfig[testConfig](name)
	require.Error(t, err)
	require.False(t, os.IsNotExist(err))
}

func TestReadConfigWithDefaults(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "hrexport.json5")
	defaults := testConfig{BaseUrl: "https://example.com", Timeout: 30, StateDir: "."}

	cfg, err := ReadConfigWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, cfg)

	writeFile(t, name, `{timeout: 10}`)
	cfg, err = ReadConfigWithDefaults(name, defaults)
	require.NoError(t, err)
	require.Equal(t, testConfig{BaseUrl: "https://example.com", Timeout: 10, StateDir: "."}, cfg)
}
