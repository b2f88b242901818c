// wbcheck CLI - runs workloads against the write-barrier-verifying collector
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/wbcheck/arena"
	"github.com/chazu/wbcheck/config"
	"github.com/chazu/wbcheck/dump"
	"github.com/chazu/wbcheck/gc"
	"github.com/chazu/wbcheck/journal"
)

// Exit statuses.
const (
	exitOK         = 0
	exitViolations = 1
	exitAbort      = 2
	exitUsage      = 3
)

var log = commonlog.GetLogger("wbcheck")

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "inspect":
			os.Exit(handleInspectCommand(os.Args[2:], os.Stdout, os.Stderr))
		case "journal":
			os.Exit(handleJournalCommand(os.Args[2:], os.Stdout, os.Stderr))
		}
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configDir   string
	scenario    string
	n           int
	workers     int
	backend     string
	eager       bool
	debug       bool
	stress      bool
	warnUseless bool
	threshold   int
	dumpPath    string
	journalPath string
	pace        string
	verbose     int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("wbcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.configDir, "config", ".", "Directory to search (upwards) for "+config.FileName)
	fs.StringVar(&o.scenario, "scenario", "chain", "Workload to run: "+scenarioNames())
	fs.IntVar(&o.n, "n", 1000, "Workload size")
	fs.IntVar(&o.workers, "workers", 4, "Mutator goroutines for the concurrent scenario")
	fs.StringVar(&o.backend, "backend", "", "Collector backend: wbcheck or epsilon")
	fs.BoolVar(&o.eager, "eager", false, "Verify after every write barrier (a miss aborts)")
	fs.BoolVar(&o.debug, "debug", false, "Debug output from the collector")
	fs.BoolVar(&o.stress, "stress", false, "Collect at every allocation")
	fs.BoolVar(&o.warnUseless, "warn-useless", false, "Warn about write barriers that record nothing new")
	fs.IntVar(&o.threshold, "threshold", 0, "Initial collection threshold (live objects)")
	fs.StringVar(&o.dumpPath, "dump", "", "Write a CBOR heap dump to this path on exit")
	fs.StringVar(&o.journalPath, "journal", "", "Record collection cycles in this SQLite database")
	fs.StringVar(&o.pace, "pace", "", "Run the pacer at this interval (e.g. 50ms)")
	fs.IntVar(&o.verbose, "v", 0, "Log verbosity (added to the configured level)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: wbcheck [options]\n")
		fmt.Fprintf(stderr, "       wbcheck inspect <dump>\n")
		fmt.Fprintf(stderr, "       wbcheck journal <db>\n\n")
		fmt.Fprintf(stderr, "Runs a workload on a managed heap whose collector verifies every\n")
		fmt.Fprintf(stderr, "write barrier. Exits 1 if a missed barrier was found, 2 on abort.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  wbcheck -scenario churn -n 50000            # Threshold-driven collections\n")
		fmt.Fprintf(stderr, "  wbcheck -scenario missed                    # Report a missed barrier\n")
		fmt.Fprintf(stderr, "  wbcheck -scenario missed -eager             # Abort on it instead\n")
		fmt.Fprintf(stderr, "  wbcheck -scenario concurrent -pace 10ms     # Mutators + pacer\n")
		fmt.Fprintf(stderr, "  wbcheck -dump heap.cbor && wbcheck inspect heap.cbor\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if scenarios[o.scenario] == nil {
		return nil, fmt.Errorf("unknown scenario %q (want %s)", o.scenario, scenarioNames())
	}
	return o, nil
}

// loadConfig merges wbcheck.toml, WBCHECK_* variables and flags, in that
// order of increasing precedence.
func loadConfig(o *options) (*config.File, error) {
	f, err := config.FindAndLoad(o.configDir)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = config.Default()
	}
	if err := f.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if o.backend != "" {
		f.GC.Backend = o.backend
	}
	if o.eager {
		f.GC.VerifyAfterEveryWriteBarrier = true
	}
	if o.debug {
		f.GC.DebugOutput = true
	}
	if o.stress {
		f.GC.Stress = true
	}
	if o.warnUseless {
		f.GC.WarnOnUselessWriteBarrier = true
	}
	if o.threshold > 0 {
		f.GC.InitialThreshold = o.threshold
	}
	if o.dumpPath != "" {
		f.Dump.Path = o.dumpPath
	}
	if o.journalPath != "" {
		f.Journal.Path = o.journalPath
	}
	if o.pace != "" {
		f.Pacer.Enabled = true
		f.Pacer.Interval = o.pace
	}
	f.Log.Verbosity += o.verbose
	return f, nil
}

func configureLogging(f *config.File) {
	if f.Log.Path == "" {
		commonlog.Configure(f.Log.Verbosity, nil)
		return
	}
	path := f.Resolve(f.Log.Path)
	commonlog.Configure(f.Log.Verbosity, &path)
}

// run executes one workload and returns the process exit status.
func run(args []string, stdout, stderr io.Writer) (status int) {
	o, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	f, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitUsage
	}
	configureLogging(f)

	a, err := arena.New(f.GC)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	backend := a.Backend()
	if c, ok := backend.(*gc.Collector); ok {
		c.SetDiagnosticWriter(stderr)
	}

	var pacerFatal fatalCatcher

	var j *journal.Journal
	if f.Journal.Path != "" {
		j, err = journal.Open(f.Resolve(f.Journal.Path), backend.ID())
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		defer j.Close()
		a.SetCycleHook(j.Hook())
	}

	if f.Pacer.Enabled {
		interval, err := f.Pacer.Duration()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
		p := gc.NewPacer(a.Handshake(), func() { pacerFatal.catch(a.Collect) }, interval)
		p.Start()
		defer func() {
			p.Stop()
			log.Infof("pacer: %d request(s), %d direct collection(s)", p.Requests(), p.DirectCollections())
		}()
	}

	dumpPath := f.Resolve(f.Dump.Path)

	// A fatal collector error unwinds to here. The heap is left as the
	// collector saw it, which is what the dump is for.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := gc.AsFatal(r)
		if !ok {
			panic(r)
		}
		fmt.Fprintf(stderr, "wbcheck: abort: %s\n", fe)
		writeDump(dumpPath, backend, stderr)
		status = exitAbort
	}()

	log.Noticef("running %s (n=%d) on %s backend %s", o.scenario, o.n, backend.Name(), backend.ID())
	start := time.Now()
	if err := scenarios[o.scenario](a, o); err != nil {
		fmt.Fprintf(stderr, "Error: scenario %s: %v\n", o.scenario, err)
		return exitAbort
	}
	elapsed := time.Since(start)
	if fe := pacerFatal.err(); fe != nil {
		panic(fe)
	}

	writeDump(dumpPath, backend, stderr)
	closeErr := a.Close()

	fmt.Fprintf(stdout, "scenario %s finished in %s\n", o.scenario, elapsed.Round(time.Microsecond))
	gc.FormatStats(stdout, backend)
	if j != nil {
		if s, err := j.Summarize(backend.ID()); err == nil {
			printSummary(stdout, s)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}

	if closeErr != nil {
		fmt.Fprintf(stderr, "wbcheck: %v\n", closeErr)
		if errors.Is(closeErr, gc.ErrViolations) {
			return exitViolations
		}
		return exitAbort
	}
	return exitOK
}

func writeDump(path string, src dump.Source, stderr io.Writer) {
	if path == "" {
		return
	}
	if err := dump.WriteFile(path, dump.Capture(src, time.Now())); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return
	}
	log.Infof("heap dump written to %s", path)
}

// fatalCatcher keeps the first fatal collector error raised on a goroutine
// that cannot unwind to run's recover.
type fatalCatcher struct {
	first atomic.Pointer[gc.FatalError]
}

func (fc *fatalCatcher) catch(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := gc.AsFatal(r)
		if !ok {
			panic(r)
		}
		fc.first.CompareAndSwap(nil, fe)
	}()
	fn()
}

func (fc *fatalCatcher) err() *gc.FatalError {
	return fc.first.Load()
}
