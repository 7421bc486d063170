package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTables = `permissions:
  owner: [manage_all_users, view_all_users, manage_teams, view_all_teams, view_org_settings, manage_org_settings]
  admin: [manage_all_users, view_all_users, manage_teams, view_all_teams, view_org_settings]
  manager: [manage_team_users, view_team_users, view_own_team]
  lead: [view_team_users, view_own_team]
  member: [view_own_team]
hierarchy:
  owner: [admin, manager, lead, member]
  admin: [manager, lead, member]
  manager: [lead, member]
  lead: []
  member: []
`

// escalatingTables lets a manager provision admins
const escalatingTables = `permissions:
  owner: [manage_all_users]
  admin: [manage_all_users, view_all_users]
  manager: [view_team_users]
  lead: []
  member: []
hierarchy:
  owner: [admin]
  admin: [manager]
  manager: [admin]
  lead: []
  member: []
`

func writeTables(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rbac.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestValidateRBACCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		wantErr string
		wantOut string
	}{
		{
			name:    "missing file flag",
			args:    func(t *testing.T) []string { return nil },
			wantErr: "-file is required",
		},
		{
			name:    "file does not exist",
			args:    func(t *testing.T) []string { return []string{"-file", filepath.Join(t.TempDir(), "nope.yaml")} },
			wantErr: "failed to read rbac tables",
		},
		{
			name:    "escalation",
			args:    func(t *testing.T) []string { return []string{"-file", writeTables(t, escalatingTables)} },
			wantErr: "can provision",
		},
		{
			name:    "malformed yaml",
			args:    func(t *testing.T) []string { return []string{"-file", writeTables(t, "permissions: [")} },
			wantErr: "failed to parse rbac tables",
		},
		{
			name:    "valid file",
			args:    func(t *testing.T) []string { return []string{"-file", writeTables(t, validTables)} },
			wantOut: "OK",
		},
		{
			name:    "positional path",
			args:    func(t *testing.T) []string { return []string{writeTables(t, validTables)} },
			wantOut: "may assign [lead member]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			root := NewRootCommand(&out, nil)

			err := root.Execute(append([]string{"validate-rbac"}, tt.args(t)...))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}
