package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/stealthrocket/resumable"
	"github.com/stealthrocket/resumable/compiler"
	"github.com/stealthrocket/resumable/internal/source"
	"github.com/stealthrocket/resumable/ir"
	"github.com/stealthrocket/resumable/lir"
)

const usage = `
asyncc lowers suspendable procedures into resumable state machines.

USAGE:
  asyncc [OPTIONS] PATH

OPTIONS:
  -h, --help        Show this help information
  -v, --version     Show the compiler version
  -run NAME         Run the procedure NAME after lowering it
  -summary          Print one line per procedure instead of the lowered form
  -ir               Print the procedures as loaded, before lowering
  -j N              Lower up to N procedures concurrently
  -no-reuse         Do not share spill slots between variables
  -no-color         Disable colored output
  -debug            Enable debug logging
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("asyncc", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprintln(stderr, usage[1:]) }

	var (
		showVersion bool
		runName     string
		summary     bool
		printIR     bool
		concurrency int
		noReuse     bool
		noColor     bool
		debugLog    bool
	)
	flags.BoolVar(&showVersion, "v", false, "")
	flags.BoolVar(&showVersion, "version", false, "")
	flags.StringVar(&runName, "run", "", "")
	flags.BoolVar(&summary, "summary", false, "")
	flags.BoolVar(&printIR, "ir", false, "")
	flags.IntVar(&concurrency, "j", 0, "")
	flags.BoolVar(&noReuse, "no-reuse", false, "")
	flags.BoolVar(&noColor, "no-color", false, "")
	flags.BoolVar(&debugLog, "debug", false, "")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if noColor {
		color.NoColor = true
	}
	if showVersion {
		fmt.Fprintln(stdout, version())
		return nil
	}

	path := flags.Arg(0)
	if path == "" {
		flags.Usage()
		return fmt.Errorf("missing path")
	}

	log := zap.NewNop()
	if debugLog {
		var err error
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck
		compiler.SetLogger(log)
		resumable.SetLogger(log)
	}

	fns, err := source.Load(path)
	if err != nil {
		return err
	}
	if printIR {
		for _, fn := range fns {
			fmt.Fprintln(stdout, ir.Format(fn))
		}
		return nil
	}

	options := []compiler.Option{
		compiler.WithLogger(log),
		compiler.WithConcurrency(concurrency),
	}
	if noReuse {
		options = append(options, compiler.WithoutSlotReuse())
	}
	procs, err := compiler.CompileAll(context.Background(), fns, options...)
	if err != nil {
		return err
	}

	if runName != "" {
		for _, proc := range procs {
			if proc.Name == runName {
				return execute(proc, flags.Args()[1:], stdout)
			}
		}
		return fmt.Errorf("no procedure named %q in %s", runName, path)
	}

	header := color.New(color.Bold)
	for i, proc := range procs {
		if summary {
			header.Fprintf(stdout, "%s", proc.Name)
			fmt.Fprintf(stdout, ": %d states, %d fields, %d locals\n", len(proc.States), len(proc.Fields), len(proc.Locals))
			continue
		}
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		fmt.Fprint(stdout, lir.Format(proc))
	}
	return nil
}

// execute runs a lowered procedure with host functions printing to stdout.
// Arguments are passed as strings, or as integers when they parse as one.
func execute(proc *lir.Procedure, args []string, stdout io.Writer) error {
	loop := resumable.NewLoop()
	env := &resumable.Env{Funcs: map[string]resumable.Func{
		"print": func(args ...resumable.Value) (resumable.Value, error) {
			parts := make([]string, len(args))
			for i, arg := range args {
				parts[i] = fmt.Sprint(arg)
			}
			fmt.Fprintln(stdout, strings.Join(parts, " "))
			return nil, nil
		},
		// yield(v) completes with v on the next iteration of the loop.
		"yield": func(args ...resumable.Value) (resumable.Value, error) {
			var v resumable.Value
			if len(args) > 0 {
				v = args[0]
			}
			f := resumable.NewFuture()
			loop.Post(func() { f.Succeed(v) })
			return f, nil
		},
		// raise(type, message) completes with an exception on the next
		// iteration of the loop.
		"raise": func(args ...resumable.Value) (resumable.Value, error) {
			if len(args) != 2 {
				return nil, fmt.Errorf("raise expects a type and a message")
			}
			ex := resumable.NewException(fmt.Sprint(args[0]), fmt.Sprint(args[1]))
			f := resumable.NewFuture()
			loop.Post(func() { f.Fail(ex) })
			return f, nil
		},
	}}

	values := make([]resumable.Value, len(args))
	for i, arg := range args {
		var n int64
		if _, err := fmt.Sscan(arg, &n); err == nil && fmt.Sprint(n) == arg {
			values[i] = n
		} else {
			values[i] = arg
		}
	}

	result := resumable.NewFuture()
	inst, err := resumable.Start(proc, env, values, result, loop)
	if err != nil {
		return err
	}
	loop.RunUntilIdle()
	if err := inst.Err(); err != nil {
		return err
	}

	v, ex, done := result.Result()
	switch {
	case !done:
		return fmt.Errorf("%s did not complete", proc.Name)
	case ex != nil:
		color.New(color.FgYellow).Fprintf(stdout, "exception: %s\n", ex)
		for _, site := range ex.Trace {
			fmt.Fprintf(stdout, "  %s\n", site)
		}
	default:
		color.New(color.FgGreen).Fprintf(stdout, "result: %v\n", v)
	}
	return nil
}

func version() (version string) {
	version = "devel"
	if info, ok := debug.ReadBuildInfo(); ok {
		switch info.Main.Version {
		case "":
		case "(devel)":
		default:
			version = info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				version += " " + setting.Value
			}
		}
	}
	return
}
