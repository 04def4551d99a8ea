package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

var flagPollInterval time.Duration

// monitorCmd registers an input port, optionally patches a source into it,
// and prints every captured event until interrupted.
var monitorCmd = &cobra.Command{
	Use:   "monitor [SRC]",
	Short: "Print MIDI events captured from the patch graph",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		in, err := client.RegisterPort("monitor_in", contracts.Input)
		if err != nil {
			return errors.Wrap(err, "registering input port")
		}
		if len(args) == 1 {
			src, err := findPort(client, args[0])
			if err != nil {
				return err
			}
			if err := client.Connect(src, in); err != nil {
				return errors.Wrap(err, "connecting source")
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error {
			ticker := time.NewTicker(flagPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for {
						ev, ok, err := client.Receive(in)
						if err != nil {
							return errors.Wrap(err, "receiving")
						}
						if !ok {
							break
						}
						fmt.Printf("%10.4fs  % X\n", ev.CapturedAt, ev.Data)
					}
				}
			}
		})
		return group.Wait()
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&flagPollInterval, "poll", 5*time.Millisecond, "receive polling interval")
	RootCmd.AddCommand(monitorCmd)
}
