package cli

import (
	"flag"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

func newRolesCommand(e *env) *Command {
	cmd := &Command{
		Name:        "roles",
		Description: "Print the role permission and hierarchy tables",
		Flags:       flag.NewFlagSet("roles", flag.ContinueOnError),
	}
	cmd.Flags.String("file", "", "RBAC tables file (default: built-in tables)")
	cmd.Flags.String("format", "text", "Output format: text or yaml")
	cmd.Run = func(args []string) error { return runRoles(e, args) }
	return cmd
}

func runRoles(e *env, args []string) error {
	flags := flag.NewFlagSet("roles", flag.ContinueOnError)
	flags.SetOutput(e.out)
	file := flags.String("file", "", "RBAC tables file (default: built-in tables)")
	format := flags.String("format", "text", "Output format: text or yaml")

	if err := flags.Parse(args); err != nil {
		return err
	}

	tables := rbac.DefaultTables()
	if *file != "" {
		var err error
		if tables, err = rbac.LoadTables(*file); err != nil {
			return err
		}
	}

	switch *format {
	case "yaml":
		enc := yaml.NewEncoder(e.out)
		enc.SetIndent(2)
		if err := enc.Encode(tables); err != nil {
			return fmt.Errorf("failed to encode tables: %w", err)
		}
		return enc.Close()
	case "text":
		for _, role := range rbac.AllRoles() {
			fmt.Fprintf(e.out, "%s\n", role)
			fmt.Fprintf(e.out, "  assigns:     %s\n", joinRoles(tables.AssignableRoles(role)))
			perms := tables.PermissionsOf(role).Sorted()
			names := make([]string, len(perms))
			for i, p := range perms {
				names[i] = string(p)
			}
			fmt.Fprintf(e.out, "  permissions: %s\n", strings.Join(names, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (must be text or yaml)", *format)
	}
}

func joinRoles(roles []rbac.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
