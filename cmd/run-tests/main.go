// Command run-tests runs the capsule test suite through go test and
// summarizes the results, optionally as an HTML report.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kbukum/capsule/errors"
	"github.com/kbukum/capsule/process"
)

type options struct {
	html     string
	verbose  bool
	failFast bool
	filter   string
	stream   bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:           "run-tests [packages...]",
		Short:         "Run the test suite and summarize the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, o, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.html, "html", "", "write an HTML report to this directory")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "print the output of every test")
	cmd.Flags().BoolVarP(&o.failFast, "exitfirst", "x", false, "stop at the first failure")
	cmd.Flags().StringVarP(&o.filter, "keyword", "k", "", "only run tests matching this regular expression")
	cmd.Flags().BoolVarP(&o.stream, "no-capture", "s", false, "stream test output as it is produced, one package at a time")
	return cmd
}

// goTestArgs maps the options onto a go test command line.
func goTestArgs(o options, packages []string) []string {
	args := []string{"test", "-json"}
	if o.failFast {
		args = append(args, "-failfast")
	}
	if o.filter != "" {
		args = append(args, "-run", o.filter)
	}
	if o.stream {
		args = append(args, "-p", "1")
	}
	if len(packages) == 0 {
		packages = []string{"./..."}
	}
	return append(args, packages...)
}

func run(ctx context.Context, o options, packages []string, out io.Writer) error {
	events := newEventWriter(out, o.verbose || o.stream)
	_, err := process.Run(ctx, process.Command{
		Binary: "go",
		Args:   goTestArgs(o, packages),
		Stdout: events,
		Stderr: os.Stderr,
	})
	events.Flush()
	summary := events.Summary()

	fmt.Fprint(out, summary)
	if o.html != "" {
		path, herr := writeHTML(o.html, summary)
		if herr != nil {
			return herr
		}
		fmt.Fprintf(out, "HTML report: %s\n", path)
	}

	if summary.Failed() > 0 {
		return fmt.Errorf("%d test(s) failed", summary.Failed())
	}
	if errors.HasCode(err, errors.ErrCodeJobFailure) {
		return fmt.Errorf("go test failed: %w", err)
	}
	return err
}

func writeHTML(dir string, s *Summary) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "index.html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := renderHTML(f, s); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
