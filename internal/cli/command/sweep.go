package command

import (
	"errors"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokenkeeper/internal/core/service"
)

// SweepCommand runs one cleaner cycle and exits.
func SweepCommand() *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "Delete expired and revoked tokens once",
		Action: sweep,
	}
}

type sweepOutput struct {
	Deleted  int    `json:"deleted" yaml:"deleted"`
	Failed   int    `json:"failed" yaml:"failed"`
	Duration string `json:"duration" yaml:"duration"`
}

func (o sweepOutput) Rows() [][]string {
	return [][]string{
		{"deleted", strconv.Itoa(o.Deleted)},
		{"failed", strconv.Itoa(o.Failed)},
		{"duration", o.Duration},
	}
}

func sweep(c *cli.Context) (err error) {
	store, cfg, log, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, store.Close()) }()

	cleaner := service.NewTokenCleaner(store, cfg.CleanerConfig(), service.WithCleanerLogger(log))
	res, sweepErr := cleaner.SweepOnce(c.Context)
	if renderErr := render(c, sweepOutput{
		Deleted:  res.Deleted,
		Failed:   res.Failed,
		Duration: res.Duration.String(),
	}); renderErr != nil {
		return renderErr
	}
	if sweepErr != nil {
		return sweepErr
	}
	if res.Failed > 0 {
		return cli.Exit("some records could not be deleted", 2)
	}
	return nil
}
