// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"codeberg.org/oliverandrich/intragate/internal/config"
	"codeberg.org/oliverandrich/intragate/internal/server"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:   "intragate",
		Usage:  "Verify Discord members against the 42 intranet",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			auditCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
