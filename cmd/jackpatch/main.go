// jackpatch is a small patchbay tool for the MIDI bridge: list ports, edit
// the connection graph, drive the shared transport, and send or monitor MIDI
// events from the command line.
package main

import (
	"fmt"
	"os"
	"regexp"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
	"github.com/jessecrossen/jackpatch/sdk/jackpatch"
)

var (
	flagDriver string
	flagName   string
)

// RootCmd is the base command; every subcommand registers itself in init.
var RootCmd = &cobra.Command{
	Use:   "jackpatch",
	Short: "Manage ports, connections, transport and MIDI events on a patch server",
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagDriver, "driver", jackpatch.DriverSim, "server backend (sim or jack)")
	RootCmd.PersistentFlags().StringVar(&flagName, "name", "jackpatch-cli", "client name to register with the server")
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openClient builds a client from the persistent flags and opens it.
func openClient() (contracts.PatchClient, error) {
	client, err := jackpatch.NewPatchClient(
		contracts.WithDriver(flagDriver),
		contracts.WithClientName(flagName),
		contracts.WithLogLevel(contracts.WarnLevel),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating client")
	}
	if err := client.Open(); err != nil {
		return nil, errors.Wrap(err, "opening client")
	}
	return client, nil
}

// findPort resolves a qualified port name to a fresh snapshot.
func findPort(client contracts.PatchClient, qualified string) (contracts.Port, error) {
	ports, err := client.Ports(contracts.PortQuery{
		NamePattern: "^" + regexp.QuoteMeta(qualified) + "$",
	})
	if err != nil {
		return contracts.Port{}, errors.Wrap(err, "listing ports")
	}
	if len(ports) == 0 {
		return contracts.Port{}, errors.Errorf("no port named %q", qualified)
	}
	return ports[0], nil
}
