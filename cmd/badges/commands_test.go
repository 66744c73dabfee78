package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecalculateArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"all subjects", nil, false},
		{"one subject", []string{"store", "1"}, false},
		{"missing id", []string{"store"}, true},
		{"too many", []string{"store", "1", "2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := recalculateCmd.Args(recalculateCmd, tt.args)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestMigrateAndSweep_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	yaml := "database:\n" +
		"  driver: sqlite\n" +
		"  sqlite:\n" +
		"    path: " + filepath.Join(dir, "badges.db") + "\n" +
		"  redis:\n" +
		"    enabled: false\n" +
		"logging:\n" +
		"  level: error\n"
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgFile, "migrate"})
	require.NoError(t, rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgFile, "sweep"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"deactivated": 0`)

	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgFile, "recalculate"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `"evaluated": 0`)
}
