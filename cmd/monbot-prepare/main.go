// Command monbot-prepare performs the entrypoint's filesystem preparation
// without handing off, for init containers and one-shot volume fixes.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/monbot/entrypoint/internal/config"
	"github.com/monbot/entrypoint/internal/launcher"
	"github.com/monbot/entrypoint/internal/logger"
	"github.com/monbot/entrypoint/internal/process"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		process.Fatal(err)
	}
}

func run(args []string, getenv config.Getenv, stdout io.Writer) error {
	var (
		configPath string
		variant    string
		noChown    bool
		dryRun     bool
		logLevel   string
	)

	flags := pflag.NewFlagSet("monbot-prepare", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "YAML overlay file (overrides $"+config.EnvConfigFile+")")
	flags.StringVar(&variant, "variant", "", "directory set: standard or reports (overrides $"+config.EnvVariant+")")
	flags.BoolVar(&noChown, "no-chown", false, "skip the recursive ownership change")
	flags.BoolVar(&dryRun, "dry-run", false, "print the resolved plan as YAML and change nothing")
	flags.StringVar(&logLevel, "log-level", "info", "minimum log level: info, warn or error")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", flags.Args())
	}

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	overrides := map[string]string{
		config.EnvConfigFile: configPath,
		config.EnvVariant:    variant,
	}
	cfg, err := config.Resolve(config.Layer(overrides, getenv))
	if err != nil {
		return &launcher.ConfigError{Err: err}
	}
	if cfg.LogDir != "" && !dryRun {
		if err := logger.Init(cfg.LogDir); err != nil {
			logger.Warn("file logging disabled: %v", err)
		}
		defer logger.Close()
	}

	l := launcher.New(cfg, nil)
	plan, _, err := l.Resolve()
	if err != nil {
		return err
	}
	if noChown {
		plan.Chown = false
	}

	if dryRun {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return err
		}
		return enc.Close()
	}

	rep, err := l.Prepare(plan)
	if err != nil {
		return err
	}
	logger.Info("prepared %d directories (%d created), ownership: %s", len(plan.Directories), len(rep.Created), rep.Chown)
	return nil
}
