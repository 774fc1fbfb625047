package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserCommandPerPlatform(t *testing.T) {
	t.Parallel()

	url := "http://127.0.0.1:4000/"
	tests := []struct {
		name     string
		goos     string
		wsl      bool
		wantName string
		wantArgs []string
	}{
		{name: "macos", goos: "darwin", wantName: "open", wantArgs: []string{url}},
		{name: "windows", goos: "windows", wantName: "powershell", wantArgs: []string{"-NoProfile", "-Command", "Start", url}},
		{name: "wsl", goos: "linux", wsl: true, wantName: "powershell.exe", wantArgs: []string{"-NoProfile", "-Command", "Start", url}},
		{name: "linux", goos: "linux", wantName: "xdg-open", wantArgs: []string{url}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, tt.wsl, url)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBrowserCommandUnsupported(t *testing.T) {
	t.Parallel()

	_, _, err := browserCommand("plan9", false, "http://127.0.0.1/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operating system")
}
