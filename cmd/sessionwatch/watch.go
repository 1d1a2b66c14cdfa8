package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrsteele09/go-backoffice/renewal"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	subject      string
	autoRenew    bool
	tickInterval time.Duration
	duration     time.Duration
	timeout      time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print session state transitions until the session ends",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cookie == "" {
			return errors.New("a session cookie is required (--cookie)")
		}
		client, err := renewal.NewHTTPClient(baseURL, cookie, subject, timeout)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watch(ctx, cmd.OutOrStdout(), client)
	},
}

func init() {
	watchCmd.Flags().StringVar(&subject, "subject", "", "user id of the session; looked up when empty")
	watchCmd.Flags().BoolVar(&autoRenew, "auto-renew", false, "renew the session when it becomes critical")
	watchCmd.Flags().DurationVar(&tickInterval, "tick", renewal.DefaultTickInterval, "countdown interval")
	watchCmd.Flags().DurationVar(&duration, "duration", renewal.DefaultSessionDuration, "session lifetime restored by a renewal")
	watchCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP request timeout")
	rootCmd.AddCommand(watchCmd)
}

func watch(ctx context.Context, out io.Writer, client *renewal.HTTPClient) error {
	session, err := client.Session(ctx)
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}

	monitor := renewal.New(client, client,
		renewal.WithTickInterval(tickInterval),
		renewal.WithSessionDuration(duration),
		renewal.WithRemaining(session.Remaining(time.Now())),
	)
	renewIfCritical := func(ctx context.Context, status renewal.Status) {
		if status.State != renewal.Critical || !autoRenew {
			return
		}
		renewed, err := monitor.Renew(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("session renewal failed")
			return
		}
		fmt.Fprint(out, "renewed: ")
		printStatus(out, renewed)
	}

	if status, ok := monitor.Status(); ok {
		printStatus(out, status)
		renewIfCritical(ctx, status)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Run only fails when its context ends, which is a normal stop here.
		if err := monitor.Run(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case status, ok := <-monitor.Updates():
				if !ok {
					if gctx.Err() == nil {
						fmt.Fprintln(out, "session is no longer an administrator session, stopping")
					}
					return nil
				}
				printStatus(out, status)
				if status.State == renewal.Expired {
					cancel()
					return nil
				}
				renewIfCritical(gctx, status)
			}
		}
	})
	return g.Wait()
}

func printStatus(out io.Writer, s renewal.Status) {
	fmt.Fprintf(out, "%s %-8s %d minutes remaining\n", time.Now().Format(time.Kitchen), s.State, s.RemainingMinutes())
}
