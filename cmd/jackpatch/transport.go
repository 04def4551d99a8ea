package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// transportCmd groups the transport subcommands.
var transportCmd = &cobra.Command{
	Use:   "transport",
	Short: "Inspect and drive the shared transport clock",
}

var transportStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the transport position and rolling state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		tr := client.Transport()
		sec, err := tr.Time()
		if err != nil {
			return errors.Wrap(err, "reading transport time")
		}
		rolling, err := tr.IsRolling()
		if err != nil {
			return errors.Wrap(err, "reading transport state")
		}
		state := "stopped"
		if rolling {
			state = "rolling"
		}
		fmt.Printf("%.3fs (%s)\n", sec, state)
		return nil
	},
}

var transportStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the transport rolling",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return errors.Wrap(client.Transport().Start(), "starting transport")
	},
}

var transportStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return errors.Wrap(client.Transport().Stop(), "stopping transport")
	},
}

var transportLocateCmd = &cobra.Command{
	Use:   "locate SECONDS",
	Short: "Reposition the transport",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sec, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.Wrap(err, "parsing seconds")
		}
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()
		return errors.Wrap(client.Transport().SetTime(sec), "locating transport")
	},
}

func init() {
	transportCmd.AddCommand(transportStatusCmd)
	transportCmd.AddCommand(transportStartCmd)
	transportCmd.AddCommand(transportStopCmd)
	transportCmd.AddCommand(transportLocateCmd)
	RootCmd.AddCommand(transportCmd)
}
