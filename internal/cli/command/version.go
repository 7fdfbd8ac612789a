package command

import (
	"github.com/urfave/cli/v2"

	"github.com/yndnr/tokenkeeper/internal/infra/buildinfo"
)

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show build information",
		Action: func(c *cli.Context) error {
			return render(c, versionOutput(buildinfo.Get()))
		},
	}
}

type versionOutput buildinfo.Info

func (v versionOutput) Rows() [][]string {
	return [][]string{
		{"version", v.Version},
		{"commit", v.Commit},
		{"build_time", v.BuildTime},
		{"go_version", v.GoVersion},
		{"platform", v.Platform},
	}
}
