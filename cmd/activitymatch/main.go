// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "activitymatch",
		Usage: "Match activity bookings to occasions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				EnvVars: []string{"ACTIVITYMATCH_CONFIG"},
				Usage:   "specify the config file (default ./config/config.yaml)",
			},
		},
		Commands: []*cli.Command{
			migrateCmd,
			importCmd,
			exportCmd,
			runCmd,
			simulateCmd,
			serveCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(1)
	}
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "Create or update the database schema",
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		return doMigrate(ctx.Context, e)
	},
}

var importCmd = &cli.Command{
	Name:  "import",
	Usage: "Load a snapshot.json into the database",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "snapshot",
			Required: true,
			Usage:    "specify the input snapshot.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		return doImport(ctx.Context, e, ctx.String("snapshot"))
	},
}

var exportCmd = &cli.Command{
	Name:  "export",
	Usage: "Write one period of the database to a snapshot.json",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "period",
			Required: true,
			Usage:    "specify the period id",
		},
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "specify the output snapshot.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		return doExport(ctx.Context, e, ctx.String("period"), ctx.String("out"))
	},
}

var runCmd = &cli.Command{
	Name:    "run",
	Usage:   "Match the open bookings of a period",
	Aliases: []string{"r"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "period",
			Required: true,
			Usage:    "specify the period id",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "compute the decisions without writing them",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "specify the output summary.json",
		},
	},
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		return doRun(ctx.Context, e, ctx.String("period"), ctx.Bool("dry-run"), ctx.String("out"))
	},
}

var simulateCmd = &cli.Command{
	Name:  "simulate",
	Usage: "Match a period of a snapshot.json without any database",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "snapshot",
			Required: true,
			Usage:    "specify the input snapshot.json",
		},
		&cli.StringFlag{
			Name:     "period",
			Required: true,
			Usage:    "specify the period id",
		},
		&cli.StringFlag{
			Name:     "out",
			Required: true,
			Usage:    "specify the output summary.json",
		},
		&cli.StringFlag{
			Name:  "result",
			Usage: "specify the output snapshot.json with the decisions applied",
		},
	},
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		return doSimulate(ctx.Context, e,
			ctx.String("snapshot"), ctx.String("period"),
			ctx.String("out"), ctx.String("result"))
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve matching runs over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "override server.addr",
		},
	},
	Action: func(ctx *cli.Context) error {
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		if addr := ctx.String("addr"); addr != "" {
			e.cfg.Server.Addr = addr
		}
		return doServe(ctx.Context, e)
	},
}
