package main

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/chazu/wbcheck/dump"
	"github.com/chazu/wbcheck/gc"
)

// handleInspectCommand processes the `wbcheck inspect` subcommand.
// Usage:
//
//	wbcheck inspect heap.cbor            Summarize a heap dump
//	wbcheck inspect -objects heap.cbor   Also list every object
func handleInspectCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	objects := fs.Bool("objects", false, "List every object in the dump")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: wbcheck inspect [-objects] <dump>")
		return exitUsage
	}

	d, err := dump.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	printDump(stdout, d, *objects)
	return exitOK
}

func printDump(w io.Writer, d *dump.HeapDump, objects bool) {
	fmt.Fprintf(w, "dump of %s backend %s\n", d.Backend, d.Instance())
	fmt.Fprintf(w, "  taken    %s (%s)\n", d.Time().Format(time.RFC3339), humanize.Time(d.Time()))
	fmt.Fprintf(w, "  cycles   %s\n", humanize.Comma(int64(d.Cycles)))
	fmt.Fprintf(w, "  objects  %s\n", humanize.Comma(int64(len(d.Objects))))
	fmt.Fprintf(w, "  edges    %s\n", humanize.Comma(int64(d.Edges())))

	var bytes uint64
	var protected, pinned, finalizable, dirty int
	for _, r := range d.Objects {
		bytes += uint64(r.Size)
		if r.WBProtected {
			protected++
		}
		if r.Pinned {
			pinned++
		}
		if r.Finalizers > 0 {
			finalizable++
		}
		if gc.Lifecycle(r.Lifecycle) == gc.Dirty {
			dirty++
		}
	}
	fmt.Fprintf(w, "  bytes    %s\n", humanize.Bytes(bytes))
	fmt.Fprintf(w, "  protected=%d pinned=%d finalizable=%d dirty=%d\n", protected, pinned, finalizable, dirty)
	if v, ok := d.Stats[gc.StatWBViolations]; ok && v > 0 {
		fmt.Fprintf(w, "  %s objects with missed write barriers\n", humanize.Comma(int64(v)))
	}

	if !objects {
		return
	}
	fmt.Fprintln(w)
	for _, r := range d.Objects {
		fmt.Fprintf(w, "%s size=%d %s/%s", gc.Handle(r.Handle), r.Size,
			gc.Lifecycle(r.Lifecycle), gc.Color(r.Color))
		if !r.WBProtected {
			fmt.Fprint(w, " unprotected")
		}
		if r.Pinned {
			fmt.Fprint(w, " pinned")
		}
		if r.Finalizers > 0 {
			fmt.Fprintf(w, " finalizers=%d", r.Finalizers)
		}
		fmt.Fprintln(w)
		for _, c := range r.Snapshot {
			fmt.Fprintf(w, "  -> %s\n", gc.Handle(c))
		}
		for _, c := range r.WriteLog {
			if !slices.Contains(r.Snapshot, c) {
				fmt.Fprintf(w, "  +> %s\n", gc.Handle(c))
			}
		}
	}
}
