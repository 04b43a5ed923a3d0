package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPathContainsAppName(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory resolvable in this environment")
	}

	require.True(t, strings.Contains(path, appName))
	require.True(t, strings.HasSuffix(path, "config.toml"))
}
