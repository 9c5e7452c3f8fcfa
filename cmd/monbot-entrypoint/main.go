// Command monbot-entrypoint prepares the container mount points and then
// replaces itself with its arguments, run as the unprivileged app user.
//
//	ENTRYPOINT ["/usr/local/bin/monbot-entrypoint"]
//	CMD ["python", "-m", "monbot.bot"]
//
// It takes no flags; the whole argument vector is the workload command.
package main

import (
	"os"

	"github.com/monbot/entrypoint/internal/config"
	"github.com/monbot/entrypoint/internal/launcher"
	"github.com/monbot/entrypoint/internal/logger"
	"github.com/monbot/entrypoint/internal/process"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(argv []string) error {
	cfg, err := config.Resolve(os.Getenv)
	if err != nil {
		return &launcher.ConfigError{Err: err}
	}
	if cfg.LogDir != "" {
		if err := logger.Init(cfg.LogDir); err != nil {
			logger.Warn("file logging disabled: %v", err)
		}
	}
	defer logger.Close()

	logger.Info("monbot-entrypoint: variant=%s user=%s uid=%s gid=%s", cfg.Variant, cfg.User, cfg.UID, cfg.GID)
	return launcher.New(cfg, os.Environ()).Launch(argv)
}
