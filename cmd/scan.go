// File: cmd/scan.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/console"
)

// newScanCmd creates and configures the `scan` command.
func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <target>",
		Short: "Starts a cloud scan and renders pipeline progress as milestones arrive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sess, err := newSession(ctx, appConfig)
			if err != nil {
				return err
			}
			defer sess.close()
			sess.serveMetrics(appConfig)

			renderCtx, stopRender := context.WithCancel(ctx)
			defer stopRender()

			g, gctx := errgroup.WithContext(renderCtx)
			g.Go(func() error {
				defer stopRender()
				err := sess.console.StartScan(ctx, args[0])
				if errors.Is(err, console.ErrSuperseded) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				renderScanProgress(gctx, sess.console, os.Stdout)
				return nil
			})
			return g.Wait()
		},
	}
}

// renderScanProgress prints node status transitions until ctx is canceled.
func renderScanProgress(ctx context.Context, c *console.Console, w io.Writer) {
	nodes, _ := c.ScanGraph()
	last := make(map[schemas.ScanNode]schemas.NodeStatus)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		statuses := c.ScanStatuses()
		for _, node := range nodes {
			status := statuses[node]
			if last[node] == status {
				continue
			}
			last[node] = status
			switch status {
			case schemas.NodeActive:
				fmt.Fprintf(w, "  [*] %s\n", node)
			case schemas.NodeCompleted:
				fmt.Fprintf(w, "  [+] %s\n", node)
			case schemas.NodeErrored:
				fmt.Fprintf(w, "  [!] %s\n", node)
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
