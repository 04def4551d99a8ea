package main

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

var (
	flagNoteOn  string
	flagNoteOff string
	flagRaw     string
	flagDelay   time.Duration
)

// sendCmd registers a temporary output port, patches it to the target input
// and schedules one MIDI event on it.
var sendCmd = &cobra.Command{
	Use:   "send DST",
	Short: "Send a MIDI event to an input port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := buildPayload()
		if err != nil {
			return err
		}

		client, err := openClient()
		if err != nil {
			return err
		}
		defer client.Close()

		dst, err := findPort(client, args[0])
		if err != nil {
			return err
		}
		out, err := client.RegisterPort("send_out", contracts.Output)
		if err != nil {
			return errors.Wrap(err, "registering output port")
		}
		if err := client.Connect(out, dst); err != nil {
			return errors.Wrap(err, "connecting to destination")
		}
		if err := client.Send(out, payload, flagDelay); err != nil {
			return errors.Wrap(err, "sending")
		}

		// Give the realtime side a few cycles past the delay to drain
		// the queue before the port goes away with the client.
		time.Sleep(flagDelay + 50*time.Millisecond)
		return nil
	},
}

// buildPayload turns the send flags into MIDI bytes, using the midi/v2
// message builders for note events.
func buildPayload() ([]byte, error) {
	switch {
	case flagNoteOn != "":
		ch, key, vel, err := parseNote(flagNoteOn, true)
		if err != nil {
			return nil, err
		}
		return []byte(midi.NoteOn(ch, key, vel)), nil
	case flagNoteOff != "":
		ch, key, _, err := parseNote(flagNoteOff, false)
		if err != nil {
			return nil, err
		}
		return []byte(midi.NoteOff(ch, key)), nil
	case flagRaw != "":
		payload, err := hex.DecodeString(strings.ReplaceAll(flagRaw, " ", ""))
		if err != nil {
			return nil, errors.Wrap(err, "parsing raw hex payload")
		}
		return payload, nil
	default:
		return nil, errors.New("one of --on, --off or --raw is required")
	}
}

// parseNote parses "channel:key[:velocity]" with MIDI ranges.
func parseNote(s string, wantVelocity bool) (ch, key, vel uint8, err error) {
	parts := strings.Split(s, ":")
	want := 2
	if wantVelocity {
		want = 3
	}
	if len(parts) != want {
		return 0, 0, 0, errors.Errorf("invalid note %q", s)
	}
	fields := make([]uint8, len(parts))
	for i, part := range parts {
		var n int
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0, 0, 0, errors.Errorf("invalid note %q", s)
			}
			n = n*10 + int(r-'0')
		}
		if n > 127 {
			return 0, 0, 0, errors.Errorf("note field %d out of MIDI range", n)
		}
		fields[i] = uint8(n)
	}
	if wantVelocity {
		return fields[0], fields[1], fields[2], nil
	}
	return fields[0], fields[1], 0, nil
}

func init() {
	sendCmd.Flags().StringVar(&flagNoteOn, "on", "", "note-on as channel:key:velocity")
	sendCmd.Flags().StringVar(&flagNoteOff, "off", "", "note-off as channel:key")
	sendCmd.Flags().StringVar(&flagRaw, "raw", "", "raw payload as hex bytes")
	sendCmd.Flags().DurationVar(&flagDelay, "delay", 0, "schedule the event this long from now")
	RootCmd.AddCommand(sendCmd)
}
