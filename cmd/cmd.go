// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Initialize database and run migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

func rollbackCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "rollback",
		Usage:  "Revert the most recent database migration",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Rollback,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API server",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

func tokenCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a bearer token for local development",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:     "user",
				Usage:    "User id the token authenticates",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "role",
				Usage: "Role claim",
				Value: "user",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
		},
		Action: r.Token,
	}
}
