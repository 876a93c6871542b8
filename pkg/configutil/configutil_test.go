package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	InputFile string `json:"input_file"`
	Timeout   string `json:"timeout"`
	Retries   int    `json:"retries"`
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.json5")

	_, err := ReadConfig[testConfig](name)
	require.True(t, errors.Is(err, os.ErrNotExist))

	err = os.WriteFile(name, []byte(`{
		// comments are allowed
		input_file: "ids.txt",
		timeout: "10s",
		retries: 1,
	}`), 0600)
	require.NoError(t, err)

	config, err := ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{InputFile: "ids.txt", Timeout: "10s", Retries: 1}, config)

	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{timeout: "30s"}`), 0600)
	require.NoError(t, err)

	config, err = ReadConfig[testConfig](name)
	require.NoError(t, err)
	require.Equal(t, testConfig{InputFile: "ids.txt", Timeout: "30s", Retries: 1}, config)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("etc", "config.local.json5"), LocalPath(filepath.Join("etc", "config.json5")))
}
