package jackpatch

import (
	"errors"
	"testing"
	"time"

	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

func TestDefaultOptionsAreApplied(t *testing.T) {
	options, err := applyDefaultOptions()
	if err != nil {
		t.Fatalf("applying defaults: %v", err)
	}
	if options.Logger == nil {
		t.Fatal("no default logger")
	}
	if options.Driver != DriverSim {
		t.Fatalf("default driver: got %q, want %q", options.Driver, DriverSim)
	}
	if options.ClientName != "jackpatch" {
		t.Fatalf("default client name: got %q", options.ClientName)
	}
	if options.LogLevel != contracts.InfoLevel {
		t.Fatalf("default log level: got %v", options.LogLevel)
	}
}

func TestUnsupportedDriverIsRejected(t *testing.T) {
	_, err := NewPatchClient(contracts.WithDriver("bogus"))
	if !errors.Is(err, contracts.ErrUnsupportedDriver) {
		t.Fatalf("got %v, want ErrUnsupportedDriver", err)
	}
}

func TestSimRoundTripThroughTheSDK(t *testing.T) {
	client, err := NewPatchClient(
		contracts.WithDriver(DriverSim),
		contracts.WithClientName("sdk-roundtrip"),
		contracts.WithLogLevel(contracts.ErrorLevel),
	)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}
	if client.IsOpen() {
		t.Fatal("client reports open before Open")
	}
	if err := client.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer client.Close()

	out, err := client.RegisterPort("midi_out", contracts.Output)
	if err != nil {
		t.Fatalf("registering output: %v", err)
	}
	in, err := client.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		t.Fatalf("registering input: %v", err)
	}
	if err := client.Connect(out, in); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := client.Send(out, []byte{0x90, 0x24, 0x7F}, 0); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The shared sim server drives cycles on its own; poll like a real
	// control-domain consumer would.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ev, ok, err := client.Receive(in)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if ok {
			if ev.Data[0] != 0x90 {
				t.Fatalf("received %x, want the note-on", ev.Data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no event arrived within two seconds")
		}
		time.Sleep(time.Millisecond)
	}
}
