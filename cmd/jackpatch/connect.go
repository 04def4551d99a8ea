package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// connectCmd adds an edge to the patch graph.
var connectCmd = &cobra.Command{
	Use:   "connect SRC DST",
	Short: "Connect an output port to an input port",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		src, err := findPort(client, args[0])
		if err != nil {
			return err
		}
		dst, err := findPort(client, args[1])
		if err != nil {
			return err
		}
		return errors.Wrap(client.Connect(src, dst), "connecting")
	},
}

// disconnectCmd removes an edge from the patch graph.
var disconnectCmd = &cobra.Command{
	Use:   "disconnect SRC DST",
	Short: "Disconnect an output port from an input port",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		src, err := findPort(client, args[0])
		if err != nil {
			return err
		}
		dst, err := findPort(client, args[1])
		if err != nil {
			return err
		}
		return errors.Wrap(client.Disconnect(src, dst), "disconnecting")
	},
}

func init() {
	RootCmd.AddCommand(connectCmd)
	RootCmd.AddCommand(disconnectCmd)
}
