// File: cmd/analyze.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/console"
	"github.com/nullvane/argus-cli/internal/observability"
	"github.com/nullvane/argus-cli/internal/stage"
	"github.com/nullvane/argus-cli/internal/triage"
)

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	var (
		follow      bool
		noInput     bool
		triageAfter bool
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Submits a log for pipeline analysis and renders streamed progress",
		Long: `Analyze reads input from a file (or stdin when no file is given),
submits it to the remote analysis pipeline, and renders per-stage progress
as events arrive. When the pipeline pauses for review, the command prompts
for an approve/reject decision unless --no-input is set.

With --follow, the named file is tailed; after a quiet period each batch
of appended lines is resubmitted, superseding the in-flight run.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("analyze.follow_quiet", cmd.Flags().Lookup("quiet-period"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := newSession(ctx, appConfig)
			if err != nil {
				return err
			}
			defer sess.close()
			sess.serveMetrics(appConfig)

			if follow {
				if len(args) != 1 {
					return errors.New("--follow requires a file argument")
				}
				return followAndAnalyze(ctx, sess, args[0])
			}

			input, err := readAnalysisInput(args)
			if err != nil {
				return err
			}

			if err := runAnalysis(ctx, sess, input); err != nil {
				return err
			}

			if sess.console.ReviewPending() && !noInput {
				if err := promptForDecisions(ctx, sess); err != nil {
					return err
				}
			}

			printFindings(cmd.OutOrStdout(), sess.console.Findings())

			if triageAfter && !noInput {
				return triageLoop(ctx, sess, cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return nil
		},
	}

	analyzeCmd.Flags().BoolVarP(&follow, "follow", "f", false, "tail the file and resubmit appended lines after a quiet period")
	analyzeCmd.Flags().BoolVar(&noInput, "no-input", false, "never prompt; review-gated runs are left pending")
	analyzeCmd.Flags().BoolVar(&triageAfter, "triage", false, "enter an interactive triage loop after the run completes")
	analyzeCmd.Flags().Duration("quiet-period", 2*time.Second, "quiet period before --follow resubmits accumulated lines")
	return analyzeCmd
}

// readAnalysisInput loads the submission text from the file argument or
// stdin.
func readAnalysisInput(args []string) (string, error) {
	var (
		raw []byte
		err error
	)
	if len(args) == 1 && args[0] != "-" {
		raw, err = os.ReadFile(args[0])
	} else {
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return "", fmt.Errorf("reading analysis input: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", errors.New("analysis input is empty")
	}
	return string(raw), nil
}

// runAnalysis submits input and renders stage progress concurrently until
// the run reaches a terminal state.
func runAnalysis(ctx context.Context, sess *session, input string) error {
	renderCtx, stopRender := context.WithCancel(ctx)
	defer stopRender()

	g, gctx := errgroup.WithContext(renderCtx)
	g.Go(func() error {
		defer stopRender()
		err := sess.console.SubmitAnalysis(ctx, input)
		if errors.Is(err, console.ErrSuperseded) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		renderStageProgress(gctx, sess.console, os.Stdout)
		return nil
	})
	return g.Wait()
}

// renderStageProgress prints stage transitions as they happen, one line
// per change, until ctx is canceled.
func renderStageProgress(ctx context.Context, c *console.Console, w io.Writer) {
	last := make(map[string]stage.Status)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		for _, s := range c.Stages() {
			if last[s.Name] == s.Status {
				continue
			}
			last[s.Name] = s.Status
			switch s.Status {
			case stage.StatusRunning:
				fmt.Fprintf(w, "  [*] %s running\n", s.Name)
			case stage.StatusComplete:
				if s.ElapsedSeconds > 0 {
					fmt.Fprintf(w, "  [+] %s complete (%.1fs, $%.4f)\n", s.Name, s.ElapsedSeconds, s.CostUSD)
				} else {
					fmt.Fprintf(w, "  [+] %s complete\n", s.Name)
				}
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		}
	}
}

// promptForDecisions walks the review gate until it closes or the analyst
// skips. The pipeline may pause again after each decision.
func promptForDecisions(ctx context.Context, sess *session) error {
	reader := bufio.NewReader(os.Stdin)

	for sess.console.ReviewPending() {
		pending := sess.console.Findings().Active
		fmt.Printf("\nPipeline paused for review: %d finding(s) pending.\n", len(pending))
		for _, f := range pending {
			fmt.Printf("  %-12s %-8s %s\n", f.ID, f.Risk, f.Description)
		}
		fmt.Print("Decision [approve/reject/skip]: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil // EOF: leave the gate pending.
		}
		verb := strings.ToLower(strings.TrimSpace(line))
		if verb == "skip" || verb == "" {
			return nil
		}

		decision := schemas.Decision(verb)
		if !decision.Valid() {
			fmt.Println("Enter approve, reject, or skip.")
			continue
		}

		fmt.Print("Notes (optional): ")
		notes, _ := reader.ReadString('\n')

		err = sess.console.SubmitScanDecision(ctx, decision, strings.TrimSpace(notes))
		switch {
		case err == nil:
		case errors.Is(err, console.ErrReviewInFlight):
			fmt.Println("A decision is already being submitted.")
		default:
			var rerr *console.ResumeError
			if errors.As(err, &rerr) {
				fmt.Printf("Resume failed (%v); the review is still pending, try again.\n", rerr.Err)
				continue
			}
			return err
		}
	}
	return nil
}

// triageLoop is a minimal interactive shell over the finding store.
func triageLoop(ctx context.Context, sess *session, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, "\nTriage commands: list | snooze <id> | ignore <id> | solve <id> | restore <id> <from> | risk <id> <level> | done")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(out, "triage> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return nil
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "done", "quit", "exit":
			return nil

		case "list":
			printFindings(out, sess.console.Findings())

		case "snooze", "ignore", "solve":
			if len(fields) != 2 {
				fmt.Fprintf(out, "usage: %s <id>\n", fields[0])
				continue
			}
			dest := map[string]triage.Bucket{
				"snooze": triage.BucketSnoozed,
				"ignore": triage.BucketIgnored,
				"solve":  triage.BucketSolved,
			}[fields[0]]
			if !sess.console.MoveFinding(fields[1], dest) {
				fmt.Fprintf(out, "no active finding %q\n", fields[1])
			}

		case "restore":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: restore <id> <snoozed|ignored|solved>")
				continue
			}
			from, ok := triage.ParseBucket(fields[2])
			if !ok || !from.IsSide() {
				fmt.Fprintf(out, "unknown collection %q\n", fields[2])
				continue
			}
			if !sess.console.RestoreFinding(fields[1], from) {
				fmt.Fprintf(out, "no finding %q in %s\n", fields[1], fields[2])
			}

		case "risk":
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: risk <id> <critical|high|medium|low|info>")
				continue
			}
			level := schemas.RiskLevel(fields[2])
			if !level.Valid() {
				fmt.Fprintf(out, "unknown risk level %q\n", fields[2])
				continue
			}
			if !sess.console.UpdateFinding(fields[1], schemas.FindingPatch{Risk: &level}) {
				fmt.Fprintf(out, "no active finding %q\n", fields[1])
			}

		default:
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}

// printFindings renders all four collections.
func printFindings(w io.Writer, f console.Findings) {
	section := func(name string, findings []schemas.Finding) {
		fmt.Fprintf(w, "\n%s (%d)\n", name, len(findings))
		for _, finding := range findings {
			fmt.Fprintf(w, "  %-12s %-10s %-24s %s\n", finding.ID, finding.Risk, finding.Type, finding.Description)
		}
	}
	section("Active", f.Active)
	section("Snoozed", f.Snoozed)
	section("Ignored", f.Ignored)
	section("Solved", f.Solved)
}

// followAndAnalyze tails path and resubmits the accumulated tail after
// each quiet period. A resubmission supersedes the in-flight run.
func followAndAnalyze(ctx context.Context, sess *session, path string) error {
	logger := observability.GetLogger()

	// Read through viper: the quiet-period flag binds after the config
	// struct is unmarshaled.
	quiet := viper.GetDuration("analyze.follow_quiet")
	if quiet <= 0 {
		quiet = appConfig.Analyze.FollowQuiet
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to tail %s: %w", path, err)
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	var buffered []string
	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	submit := func(input string) {
		go func() {
			err := sess.console.SubmitAnalysis(ctx, input)
			switch {
			case err == nil, errors.Is(err, console.ErrSuperseded):
			default:
				logger.Warn("Follow submission failed.", zap.Error(err))
			}
		}()
	}

	fmt.Printf("Following %s (quiet period %s). Ctrl-C to stop.\n", path, quiet)
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				logger.Warn("Tail read error.", zap.Error(line.Err))
				continue
			}
			buffered = append(buffered, line.Text)
			// Restart the quiet timer; submission happens once the file
			// stops growing.
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(quiet)

		case <-timer.C:
			if len(buffered) == 0 {
				continue
			}
			input := strings.Join(buffered, "\n")
			buffered = nil
			fmt.Printf("Submitting %d buffered line(s).\n", strings.Count(input, "\n")+1)
			submit(input)
		}
	}
}
