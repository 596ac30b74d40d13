package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/gookit/color"
	"github.com/goplus/llbuild/internal/runner"
	"github.com/goplus/llbuild/pkgs/build"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	buildRelease   bool
	buildJobs      int
	buildKeepGoing bool
)

var buildCmd = &cobra.Command{
	Use:   "build [target...]",
	Short: "Build the project",
	Long: `Build brings the given targets up to date, or every target of the project.
Targets are paths relative to the build directory, such as foolib/libfoo.so.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildRelease, "release", false, "Build with optimizations and NDEBUG")
	buildCmd.Flags().IntVarP(&buildJobs, "jobs", "j", 0, "Number of recipes to run at once (default: number of CPUs)")
	buildCmd.Flags().BoolVarP(&buildKeepGoing, "keep-going", "k", false, "Keep building what does not depend on a failure")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	s, err := loadSession(!buildRelease)
	if err != nil {
		return err
	}
	goals := parseGoals(args)

	rep := newReporter(os.Stderr, isTerminal(os.Stderr) && !verbose)
	r, err := runner.New(s.book, runner.Options{
		Jobs:      buildJobs,
		KeepGoing: buildKeepGoing,
		Log:       os.Stderr,
		Report:    rep.report,
	})
	if err != nil {
		return err
	}
	rep.start(r.Len(goals...))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err = r.Run(ctx, goals...)
	rep.finish()
	if err != nil {
		if n := countFailures(err); n > 0 {
			return fmt.Errorf("build failed: %d rule(s) failed", n)
		}
		return err
	}
	color.Success.Printf("%s: %d rule(s) run, %d up to date\n", s.project.Name, rep.ran, rep.upToDate)
	return nil
}

func parseGoals(args []string) []build.Path {
	var goals []build.Path
	for _, a := range args {
		goals = append(goals, build.Build(a))
	}
	return goals
}

func countFailures(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		n := 0
		for _, e := range joined.Unwrap() {
			n += countFailures(e)
		}
		return n
	}
	var re *runner.RuleError
	if errors.As(err, &re) {
		return 1
	}
	return 0
}

// reporter prints rule events, with a progress bar on terminals.
type reporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
	tty bool

	ran, upToDate int
}

func newReporter(w io.Writer, tty bool) *reporter {
	return &reporter{w: w, tty: tty}
}

func (r *reporter) start(total int) {
	if !r.tty {
		return
	}
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(true),
	)
}

func (r *reporter) report(ev runner.Event) {
	switch ev.Kind {
	case runner.Started:
		if r.bar != nil {
			r.bar.Describe(ev.Desc)
		} else {
			fmt.Fprintln(r.w, ev.Desc)
		}
		return
	case runner.Finished:
		r.ran++
	case runner.UpToDate:
		r.upToDate++
	case runner.Failed:
		if r.bar != nil {
			r.bar.Clear()
		}
		fmt.Fprint(r.w, failureText(ev))
	}
	if r.bar != nil {
		r.bar.Add(1)
	}
}

func (r *reporter) finish() {
	if r.bar != nil {
		r.bar.Finish()
	}
}

// failureText renders a failed rule. A tool's diagnostics are reproduced
// exactly as the tool wrote them.
func failureText(ev runner.Event) string {
	head := color.Error.Sprintf("FAILED: %s", ev.Desc) + "\n"
	var exitErr *build.ExitError
	if errors.As(ev.Err, &exitErr) {
		return head + exitErr.Stderr
	}
	return head + ev.Err.Error() + "\n"
}
