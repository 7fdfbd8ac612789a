package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokenkeeper/internal/infra/buildinfo"
	"github.com/yndnr/tokenkeeper/internal/server/app"
	"github.com/yndnr/tokenkeeper/internal/server/config"
)

// ServeCommand runs the store, the cleaner and the metrics listener until
// SIGINT or SIGTERM.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the token store, cleaner and metrics listener",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(c, cfg)
	if err != nil {
		return err
	}

	info := buildinfo.Get()
	log.Info("starting tokenkeeper",
		"version", info.Version,
		"commit", info.Commit,
		"config", c.String("config"))
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	var opts []app.Option
	if path := c.String("config"); path != "" {
		opts = append(opts, app.WithConfigFile(path))
	}
	srv, err := app.New(c.Context, cfg, log, opts...)
	if err != nil {
		return err
	}
	if err := srv.Run(c.Context); err != nil {
		return err
	}
	log.Info("tokenkeeper stopped")
	return nil
}
