package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

var (
	flagPortPattern string
	flagMineOnly    bool
	flagInputs      bool
	flagOutputs     bool
	flagPortFlags   []string
)

// portFlagNames maps --flags values to the PortFlags bitmask.
var portFlagNames = map[string]contracts.PortFlags{
	"physical":   contracts.Physical,
	"canmonitor": contracts.CanMonitor,
	"terminal":   contracts.Terminal,
}

func parsePortFlags(names []string) (contracts.PortFlags, error) {
	var flags contracts.PortFlags
	for _, name := range names {
		f, ok := portFlagNames[name]
		if !ok {
			return 0, errors.Errorf("unknown port flag %q (want physical, canmonitor or terminal)", name)
		}
		flags |= f
	}
	return flags, nil
}

// portsCmd lists ports on the patch server.
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI ports on the patch server",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		flags, err := parsePortFlags(flagPortFlags)
		if err != nil {
			return err
		}
		query := contracts.PortQuery{
			NamePattern: flagPortPattern,
			Flags:       flags,
			MineOnly:    flagMineOnly,
		}
		if flagInputs && !flagOutputs {
			query.Dir = contracts.Input
		}
		if flagOutputs && !flagInputs {
			query.Dir = contracts.Output
		}

		ports, err := client.Ports(query)
		if err != nil {
			return errors.Wrap(err, "listing ports")
		}
		for _, p := range ports {
			fmt.Printf("%-40s %s\n", p.QualifiedName(), p.Dir)
			peers, err := client.Connections(p)
			if err != nil {
				return errors.Wrap(err, "listing connections")
			}
			for _, peer := range peers {
				fmt.Printf("    -> %s\n", peer.QualifiedName())
			}
		}
		return nil
	},
}

func init() {
	portsCmd.Flags().StringVar(&flagPortPattern, "pattern", "", "regex filter on qualified port names")
	portsCmd.Flags().BoolVar(&flagMineOnly, "mine", false, "only ports owned by this client")
	portsCmd.Flags().BoolVar(&flagInputs, "inputs", false, "only input ports")
	portsCmd.Flags().BoolVar(&flagOutputs, "outputs", false, "only output ports")
	portsCmd.Flags().StringSliceVar(&flagPortFlags, "flags", nil, "require port flags (physical, canmonitor, terminal)")
	RootCmd.AddCommand(portsCmd)
}
