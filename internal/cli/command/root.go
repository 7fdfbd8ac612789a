package command

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokenkeeper/internal/cli/output"
	"github.com/yndnr/tokenkeeper/internal/core/service"
	"github.com/yndnr/tokenkeeper/internal/infra/buildinfo"
	"github.com/yndnr/tokenkeeper/internal/infra/confloader"
	"github.com/yndnr/tokenkeeper/internal/server/config"
	"github.com/yndnr/tokenkeeper/internal/storage"
	"github.com/yndnr/tokenkeeper/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "tokenkeeper",
		Usage:   "Issue, validate and expire API tokens",
		Version: buildinfo.Get().Version,
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			ServeCommand(),
			SweepCommand(),
			TokenCommand(),
			ConfigCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"TOKENKEEPER_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, json-compact, yaml",
			Value:   string(output.FormatTable),
		},
	}
}

// loadConfig reads defaults, the --config file and the environment, then
// verifies the result.
func loadConfig(c *cli.Context) (*config.ServerConfig, error) {
	cfg := config.Default()

	var opts []confloader.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so command
// output on stdout stays machine readable.
func newLogger(c *cli.Context, cfg *config.ServerConfig) (logger.Logger, error) {
	var w io.Writer = os.Stderr
	if c.App.ErrWriter != nil {
		w = c.App.ErrWriter
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: w,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// openStore opens the configured backend for a one-shot command. The
// memory backend is refused: its records would vanish with the process.
func openStore(c *cli.Context) (service.TokenStore, *config.ServerConfig, logger.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, err
	}
	if !storage.Durable(cfg.Storage.Backend) {
		return nil, nil, nil, fmt.Errorf("%s needs a durable storage backend, got %q", c.Command.FullName(), cfg.Storage.Backend)
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := storage.Open(c.Context, cfg.StorageConfig(), log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s store: %w", cfg.Storage.Backend, err)
	}
	return store, cfg, log, nil
}

// render writes data in the --output format.
func render(c *cli.Context, data any) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}
	return output.NewFormatter(format).Format(c.App.Writer, data)
}
