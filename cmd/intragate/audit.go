// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/database"
	"codeberg.org/oliverandrich/intragate/internal/models"
	"codeberg.org/oliverandrich/intragate/internal/repository"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/samber/lo"
	"github.com/urfave/cli/v3"
)

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Print recent verification outcomes",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Value: 20,
				Usage: "Number of events to show",
			},
			&cli.StringFlag{
				Name:  "subject",
				Usage: "Only show events for this Discord user ID",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Only show events with this outcome (granted, declined, ineligible, ...)",
			},
			&cli.DurationFlag{
				Name:  "summary",
				Usage: "Print outcome counts for this period instead of events (e.g. 24h)",
			},
		},
		Action: runAudit,
	}
}

func runAudit(ctx context.Context, cmd *cli.Command) error {
	if o := cmd.String("outcome"); o != "" {
		if _, ok := verification.ParseOutcome(o); !ok {
			return fmt.Errorf("unknown outcome %q", o)
		}
	}

	db, err := database.Open(cmd.String("database-dsn"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.New(db)
	out := cmd.Root().Writer

	if period := cmd.Duration("summary"); period > 0 {
		counts, err := repo.CountEventsByOutcome(ctx, time.Now().Add(-period))
		if err != nil {
			return err
		}
		return printSummary(out, counts)
	}

	events, err := repo.ListEvents(ctx, repository.EventFilter{
		SubjectID: cmd.String("subject"),
		Outcome:   cmd.String("outcome"),
		Limit:     int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	return printEvents(out, events)
}

func printEvents(w io.Writer, events []models.VerificationEvent) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(w, "no events")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSUBJECT\tLOGIN\tOUTCOME\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			subject(e),
			lo.CoalesceOrEmpty(e.Login, "-"),
			e.Outcome,
			lo.CoalesceOrEmpty(e.Detail, "-"),
		)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, counts map[string]int64) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCOUNT")

	outcomes := lo.Keys(counts)
	slices.Sort(outcomes)
	var total int64
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\n", o, counts[o])
		total += counts[o]
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	return tw.Flush()
}

func subject(e models.VerificationEvent) string {
	if e.SubjectLabel == "" || e.SubjectLabel == e.SubjectID {
		return e.SubjectID
	}
	return fmt.Sprintf("%s (%s)", e.SubjectLabel, e.SubjectID)
}
