// Copyright ©2025 The bamix Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command bamix provides indexed access to BAM containers: building
// BAI companion indexes and viewing or counting the records of a
// genomic region.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	app := &cli.App{
		Name:  "bamix",
		Usage: "indexed access to BAM containers",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug logging",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				log.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			indexCommand(log),
			viewCommand(log, os.Stdout),
			countCommand(log, os.Stdout),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

func indexCommand(log *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "build a BAI index for a coordinate sorted BAM file",
		ArgsUsage: "<in.bam>",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("index requires a single BAM path", 2)
			}
			return buildIndex(log, ctx.Args().First())
		},
	}
}

func viewCommand(log *logrus.Logger, w io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "view",
		Usage:     "print the records overlapping a region",
		ArgsUsage: "<in.bam> [region]",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 || ctx.NArg() > 2 {
				return cli.Exit("view requires a BAM path and an optional region", 2)
			}
			n, err := scanRegion(log, ctx.Args().Get(0), ctx.Args().Get(1), func(rec fmt.Stringer) {
				fmt.Fprintln(w, rec)
			})
			if err != nil {
				return err
			}
			log.Debugf("view matched %d records", n)
			return nil
		},
	}
}

func countCommand(log *logrus.Logger, w io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "count the records overlapping a region",
		ArgsUsage: "<in.bam> [region]",
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() < 1 || ctx.NArg() > 2 {
				return cli.Exit("count requires a BAM path and an optional region", 2)
			}
			n, err := scanRegion(log, ctx.Args().Get(0), ctx.Args().Get(1), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, n)
			return nil
		},
	}
}
