package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/r3aper2020/Gamut-MGMT/pkg/cli"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("gamutctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	level := fs.String("log-level", envOr("GAMUT_LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: gamutctl [-log-level level] <command> [args]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	logger := logrus.New()
	logger.SetOutput(stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if parsed, err := logrus.ParseLevel(*level); err == nil {
		logger.SetLevel(parsed)
	} else {
		logger.WithField("log_level", *level).Warn("Unknown log level, using info")
	}

	if err := cli.NewRootCommand(stdout, logger).Execute(fs.Args()); err != nil {
		fmt.Fprintf(stderr, "gamutctl: %v\n", err)
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
