package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (cli *commandLine) reportCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <package id>",
		Short: "Summarize the sessions of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.report(cmd.Context(), cmd.OutOrStdout(), args[0], asJSON || !isTerminalFunc())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON even on a terminal")
	return cmd
}

func (cli *commandLine) report(ctx context.Context, w io.Writer, packageID string, asJSON bool) error {
	rep, err := cli.svc.Aggregate(ctx, packageID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(w, rep)
	}

	fmt.Fprintf(w, "package:     %s\n", rep.PackageID)
	fmt.Fprintf(w, "sessions:    %d\n", rep.SessionCount)
	fmt.Fprintf(w, "completed:   %d (%.0f%%)\n", rep.CompletedCount, rep.CompletionRate*100)
	fmt.Fprintf(w, "avg score:   %s\n", formatFloat(rep.AvgScore))
	fmt.Fprintf(w, "avg time:    %s\n", formatSeconds(rep.AvgTimeSeconds))
	if len(rep.Sessions) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tATTEMPT\tSTATUS\tSCORE\tTIME\tLAST ACTIVITY")
	for _, s := range rep.Sessions {
		last := "-"
		if s.LastInteractionAt != nil {
			last = s.LastInteractionAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			s.UserID, s.Attempt, s.Status, formatFloat(s.Score), formatSeconds(s.TimeSeconds), last)
	}
	return tw.Flush()
}

func formatFloat(f *float64) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func formatSeconds(secs *float64) string {
	if secs == nil {
		return "-"
	}
	return time.Duration(*secs * float64(time.Second)).Round(time.Second).String()
}
