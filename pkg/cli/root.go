package cli

import (
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// env carries what every subcommand writes to
type env struct {
	out    io.Writer
	logger *logrus.Logger
}

// NewRootCommand creates the gamutctl root command. Results go to out and
// progress to logger.
func NewRootCommand(out io.Writer, logger *logrus.Logger) *Command {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	e := &env{out: out, logger: logger}

	root := &Command{
		Name:        "gamutctl",
		Description: "gamutctl - Gamut organization management tooling",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("gamutctl", flag.ContinueOnError),
		out:         out,
	}

	root.Subcommands["validate-rbac"] = newValidateRBACCommand(e)
	root.Subcommands["roles"] = newRolesCommand(e)
	root.Subcommands["reconcile"] = newReconcileCommand(e)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
