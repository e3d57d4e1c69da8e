package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		cmd     string
		version int
		wantErr string
	}{
		{"default is up", nil, "up", 0, ""},
		{"down", []string{"down"}, "down", 0, ""},
		{"force", []string{"force", "3"}, "force", 3, ""},
		{"force without version", []string{"force"}, "", 0, "force needs a version"},
		{"force bad version", []string{"force", "x"}, "", 0, "invalid version"},
		{"unknown", []string{"drop"}, "", 0, "unknown command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, version, err := parseCommand(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.version, version)
		})
	}
}
