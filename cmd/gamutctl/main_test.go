package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout string
		wantStderr string
	}{
		{name: "roles", args: []string{"roles"}, wantCode: 0, wantStdout: "manage_org_settings"},
		{name: "unknown command", args: []string{"frobnicate"}, wantCode: 1, wantStderr: "unknown command: frobnicate"},
		{name: "bad flag", args: []string{"-nope"}, wantCode: 2},
		{name: "bad log level falls back", args: []string{"-log-level", "loud", "roles"}, wantCode: 0, wantStderr: "Unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.wantCode, run(tt.args, &stdout, &stderr))
			assert.Contains(t, stdout.String(), tt.wantStdout)
			assert.Contains(t, stderr.String(), tt.wantStderr)
		})
	}
}
