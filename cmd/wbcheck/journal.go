package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/chazu/wbcheck/journal"
)

// handleJournalCommand processes the `wbcheck journal` subcommand.
// Usage:
//
//	wbcheck journal cycles.db            Summarize every recorded run
//	wbcheck journal -cycles cycles.db    Also list each cycle
func handleJournalCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cycles := fs.Bool("cycles", false, "List every recorded cycle")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: wbcheck journal [-cycles] <db>")
		return exitUsage
	}

	j, err := journal.Open(fs.Arg(0), uuid.Nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer j.Close()

	ids, err := j.Instances()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	if len(ids) == 0 {
		fmt.Fprintln(stdout, "no cycles recorded")
		return exitOK
	}

	for _, id := range ids {
		fmt.Fprintf(stdout, "collector %s\n", id)
		s, err := j.Summarize(id)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		printSummary(stdout, s)
		if !*cycles {
			continue
		}
		entries, err := j.Cycles(id)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		for _, e := range entries {
			fmt.Fprintf(stdout, "  #%-5d %-9s live %s -> %s, freed %s, zombies %d, violations %d, %s\n",
				e.Cycle, e.Reason,
				humanize.Comma(int64(e.LiveBefore)), humanize.Comma(int64(e.LiveAfter)),
				humanize.Comma(int64(e.Freed)), e.Zombies, e.Violations, e.Duration)
		}
	}
	return exitOK
}

func printSummary(w io.Writer, s journal.Summary) {
	var mean time.Duration
	if s.Cycles > 0 {
		mean = s.TotalPause / time.Duration(s.Cycles)
	}
	fmt.Fprintf(w, "  %s cycle(s), %s freed, %d violation(s), pause total %s mean %s max %s\n",
		humanize.Comma(int64(s.Cycles)), humanize.Comma(int64(s.Freed)), s.Violations,
		s.TotalPause, mean, s.MaxPause)
}
