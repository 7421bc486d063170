package cli

import (
	"flag"
	"fmt"

	"github.com/r3aper2020/Gamut-MGMT/pkg/rbac"
)

func newValidateRBACCommand(e *env) *Command {
	cmd := &Command{
		Name:        "validate-rbac",
		Description: "Validate an RBAC tables file",
		Flags:       flag.NewFlagSet("validate-rbac", flag.ContinueOnError),
	}
	cmd.Flags.String("file", "", "Path to the RBAC tables YAML file")
	cmd.Run = func(args []string) error { return runValidateRBAC(e, args) }
	return cmd
}

func runValidateRBAC(e *env, args []string) error {
	flags := flag.NewFlagSet("validate-rbac", flag.ContinueOnError)
	flags.SetOutput(e.out)
	file := flags.String("file", "", "Path to the RBAC tables YAML file")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		if flags.NArg() == 0 {
			return fmt.Errorf("-file is required")
		}
		*file = flags.Arg(0)
	}

	e.logger.WithField("file", *file).Debug("Loading RBAC tables")
	tables, err := rbac.LoadTables(*file)
	if err != nil {
		return fmt.Errorf("invalid RBAC tables in %s: %w", *file, err)
	}

	for _, role := range rbac.AllRoles() {
		fmt.Fprintf(e.out, "%-8s %2d permissions, may assign %v\n",
			role, len(tables.PermissionsOf(role)), tables.AssignableRoles(role))
	}
	fmt.Fprintf(e.out, "%s: OK\n", *file)
	e.logger.WithField("file", *file).Info("RBAC tables are valid")
	return nil
}
