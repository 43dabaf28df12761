// Command cgraomp extracts CGRA-offloadable kernels from an
// OpenMP-outlined Go module and emits one data flow graph per valid
// kernel.
package main

import (
	"flag"
	"fmt"
	"os"

	"cgraomp/internal/diag"
	"cgraomp/internal/driver"
	"cgraomp/internal/options"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts := options.Default()
	fs := flag.NewFlagSet("cgraomp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n  cgraomp [options] <go source or package dir>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	opts.Register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("cgraomp requires at least one Go source file")
	}

	reporter := diag.NewReporter(os.Stderr, opts.DiagFormat)
	d := &driver.Driver{Opts: opts, Reporter: reporter}
	if err := d.Run(fs.Args()); err != nil {
		return err
	}
	if reporter.HasErrors() {
		return fmt.Errorf("errors were reported while processing the module")
	}
	return nil
}
