package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"screen-lookup/src/config"
	"screen-lookup/src/messages"
	"screen-lookup/src/watcher"
)

type stressOptions struct {
	n        int
	mode     string
	text     string
	port     int
	deadline time.Duration
}

type counts struct {
	ok, busy, err atomic.Int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-resident",
		Short:         "Stress test a running resident with concurrent requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.mode, "mode", "capture", "capture|lookup: request sent by each client")
	cmd.Flags().StringVar(&opts.text, "text", "猫", "text for lookup mode")
	cmd.Flags().IntVar(&opts.port, "port", config.DefaultResidentPort, "resident port")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func runWithOptions(ctx context.Context, opts stressOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.mode != "capture" && opts.mode != "lookup" {
		return fmt.Errorf("unknown mode %q", opts.mode)
	}
	client := &watcher.ResidentClient{Addr: watcher.ResidentAddr(opts.port), Timeout: opts.deadline}
	c := stress(ctx, client, opts)
	return report(out, opts.n, c)
}

func stress(ctx context.Context, client *watcher.ResidentClient, opts stressOptions) *counts {
	var (
		wg sync.WaitGroup
		c  counts
	)
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()

			var err error
			if opts.mode == "lookup" {
				_, err = client.Lookup(ctx, opts.text)
			} else {
				_, err = client.Capture(ctx)
			}
			switch {
			case err == nil:
				c.ok.Add(1)
			case errors.Is(err, messages.ErrBusy):
				c.busy.Add(1)
			default:
				c.err.Add(1)
			}
		}()
	}
	wg.Wait()
	return &c
}

func report(out io.Writer, n int, c *counts) error {
	_, err := fmt.Fprintf(out, "launched=%d ok=%d busy=%d err=%d\n", n, c.ok.Load(), c.busy.Load(), c.err.Load())
	return err
}
