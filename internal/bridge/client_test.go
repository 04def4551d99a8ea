package bridge

import (
	"errors"
	"testing"
	"time"

	"github.com/jessecrossen/jackpatch/internal/server/serversim"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// nopLogger keeps test output quiet while satisfying the Logger contract.
type nopLogger struct{}

func (nopLogger) Info(string, ...contracts.Field)  {}
func (nopLogger) Error(string, ...contracts.Field) {}
func (nopLogger) Debug(string, ...contracts.Field) {}
func (nopLogger) Warn(string, ...contracts.Field)  {}
func (nopLogger) Fatal(string, ...contracts.Field) {}
func (nopLogger) Field() contracts.Field           { return nopField{} }
func (nopLogger) SetLevel(contracts.LogLevel)      {}

type nopField struct{}

func (f nopField) Bool(string, bool) contracts.Field       { return f }
func (f nopField) Int(string, int) contracts.Field         { return f }
func (f nopField) Int64(string, int64) contracts.Field     { return f }
func (f nopField) Float64(string, float64) contracts.Field { return f }
func (f nopField) String(string, string) contracts.Field   { return f }
func (f nopField) Uint32(string, uint32) contracts.Field   { return f }
func (f nopField) Uint64(string, uint64) contracts.Field   { return f }
func (f nopField) Error(string, error) contracts.Field     { return f }

func newTestNetwork() *serversim.Network {
	return serversim.New(contracts.SimConfig{ManualCycles: true})
}

func newTestClient(t *testing.T, net *serversim.Network, name string) *Client {
	t.Helper()
	c := NewClient(&contracts.ClientOptions{Logger: nopLogger{}, ClientName: name}, net.Dial)
	if err := c.Open(); err != nil {
		t.Fatalf("opening client %q: %v", name, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// registerPair registers an output and an input port and patches them
// together.
func registerPair(t *testing.T, c *Client) (out, in contracts.Port) {
	t.Helper()
	out, err := c.RegisterPort("midi_out", contracts.Output)
	if err != nil {
		t.Fatalf("registering output: %v", err)
	}
	in, err = c.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		t.Fatalf("registering input: %v", err)
	}
	if err := c.Connect(out, in); err != nil {
		t.Fatalf("connecting: %v", err)
	}
	return out, in
}

func TestImmediateSendArrivesDelayedSendWaits(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "superduper")
	out, in := registerPair(t, c)

	noteOn := []byte{0x90, 0x24, 0x7F}
	noteOff := []byte{0x80, 0x24, 0x7F}
	if err := c.Send(out, noteOn, 0); err != nil {
		t.Fatalf("sending note-on: %v", err)
	}
	if err := c.Send(out, noteOff, 300*time.Millisecond); err != nil {
		t.Fatalf("sending delayed note-off: %v", err)
	}

	// One cycle to drain and route, one to capture.
	net.Step(2)

	ev, ok, err := c.Receive(in)
	if err != nil || !ok {
		t.Fatalf("receive after first drain: ok=%v err=%v", ok, err)
	}
	if ev.Data[0] != 0x90 {
		t.Fatalf("first event: got %x, want the note-on", ev.Data)
	}
	if _, ok, _ := c.Receive(in); ok {
		t.Fatal("note-off delivered before its delay elapsed")
	}

	time.Sleep(350 * time.Millisecond)
	net.Step(2)

	ev, ok, err = c.Receive(in)
	if err != nil || !ok {
		t.Fatalf("receive after delay elapsed: ok=%v err=%v", ok, err)
	}
	if ev.Data[0] != 0x80 {
		t.Fatalf("second event: got %x, want the note-off", ev.Data)
	}
}

func TestCaptureOrderIsPreservedAcrossCycles(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "order")
	out, in := registerPair(t, c)

	first := []byte{0x90, 0x30, 0x40}
	second := []byte{0x90, 0x31, 0x41}
	c.Send(out, first, 0)
	c.Send(out, second, 0)
	net.Step(2)

	third := []byte{0x80, 0x30, 0x00}
	c.Send(out, third, 0)
	net.Step(2)

	want := [][]byte{first, second, third}
	for i, w := range want {
		ev, ok, err := c.Receive(in)
		if err != nil || !ok {
			t.Fatalf("event %d missing: ok=%v err=%v", i, ok, err)
		}
		if ev.Data[1] != w[1] || ev.Data[0] != w[0] {
			t.Fatalf("event %d: got %x, want %x", i, ev.Data, w)
		}
	}
	if _, ok, _ := c.Receive(in); ok {
		t.Fatal("more events than were sent")
	}
}

func TestReceiveOnEmptyInputReportsNothing(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "quiet")
	in, err := c.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		t.Fatalf("registering input: %v", err)
	}

	net.Step(3)
	if ev, ok, err := c.Receive(in); ok || err != nil {
		t.Fatalf("empty receive: got (%v, %v, %v), want nothing pending and no error", ev, ok, err)
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "patcher")
	out, in := registerPair(t, c)

	if err := c.Connect(out, in); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	peers, err := c.Connections(out)
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(peers) != 1 || !peers[0].Same(in) {
		t.Fatalf("got %d edges, want exactly one to %s", len(peers), in.QualifiedName())
	}
}

func TestReversedConnectCreatesNoEdge(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "reverser")
	out, err := c.RegisterPort("midi_out", contracts.Output)
	if err != nil {
		t.Fatal(err)
	}
	in, err := c.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Connect(in, out); err != nil {
		t.Fatalf("reversed connect must be a recorded warning, got %v", err)
	}
	peers, err := c.Connections(out)
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("reversed connect created %d edges", len(peers))
	}
}

func TestDisconnectOnNonEdgeIsANoOp(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "detacher")
	out, _ := c.RegisterPort("midi_out", contracts.Output)
	in, _ := c.RegisterPort("midi_in", contracts.Input)

	if err := c.Disconnect(out, in); err != nil {
		t.Fatalf("disconnect on a non-edge: %v", err)
	}

	if err := c.Connect(out, in); err != nil {
		t.Fatal(err)
	}
	if err := c.Disconnect(out, in); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := c.Disconnect(out, in); err != nil {
		t.Fatalf("repeated disconnect: %v", err)
	}
	peers, _ := c.Connections(out)
	if len(peers) != 0 {
		t.Fatalf("edge survived disconnect")
	}
}

func TestDirectionMisuseFailsHard(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "misuser")
	out, _ := c.RegisterPort("midi_out", contracts.Output)
	in, _ := c.RegisterPort("midi_in", contracts.Input)

	if err := c.Send(in, []byte{0x90}, 0); !errors.Is(err, contracts.ErrNotOutputPort) {
		t.Fatalf("send on input: got %v, want ErrNotOutputPort", err)
	}
	if _, _, err := c.Receive(out); !errors.Is(err, contracts.ErrNotInputPort) {
		t.Fatalf("receive on output: got %v, want ErrNotInputPort", err)
	}
	if err := c.Send(out, nil, 0); !errors.Is(err, contracts.ErrEmptyPayload) {
		t.Fatalf("empty payload: got %v, want ErrEmptyPayload", err)
	}

	foreign := contracts.Port{ClientName: "elsewhere", Name: "midi_out", Dir: contracts.Output}
	if err := c.Send(foreign, []byte{0x90}, 0); !errors.Is(err, contracts.ErrUnknownPort) {
		t.Fatalf("foreign port: got %v, want ErrUnknownPort", err)
	}
}

func TestCloseInvalidatesAndIsIdempotent(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "closer")
	out, _ := c.RegisterPort("midi_out", contracts.Output)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("repeated close: %v", err)
	}
	if c.IsOpen() {
		t.Fatal("client reports open after close")
	}
	if err := c.Send(out, []byte{0x90}, 0); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("send after close: got %v, want ErrClientClosed", err)
	}
	if _, err := c.RegisterPort("again", contracts.Output); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("register after close: got %v, want ErrClientClosed", err)
	}
	if _, err := c.Transport().Time(); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("transport after close: got %v, want ErrClientClosed", err)
	}

	// Reopen starts a fresh session; the old port stays gone.
	if err := c.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := c.Open(); err != nil {
		t.Fatalf("repeated open: %v", err)
	}
	if err := c.Send(out, []byte{0x90}, 0); !errors.Is(err, contracts.ErrUnknownPort) {
		t.Fatalf("stale port after reopen: got %v, want ErrUnknownPort", err)
	}
}

func TestTransportClampStartStop(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "conductor")
	tr := c.Transport()

	if err := tr.SetTime(-5); err != nil {
		t.Fatalf("set time: %v", err)
	}
	if sec, err := tr.Time(); err != nil || sec != 0 {
		t.Fatalf("after SetTime(-5): got %v (err %v), want 0", sec, err)
	}

	if err := tr.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	a, _ := tr.Time()
	time.Sleep(20 * time.Millisecond)
	b, _ := tr.Time()
	if b <= a {
		t.Fatalf("rolling transport did not advance: %v then %v", a, b)
	}
	if rolling, _ := tr.IsRolling(); !rolling {
		t.Fatal("IsRolling false while rolling")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	x, _ := tr.Time()
	time.Sleep(20 * time.Millisecond)
	y, _ := tr.Time()
	if x != y {
		t.Fatalf("stopped transport moved: %v then %v", x, y)
	}
	if rolling, _ := tr.IsRolling(); rolling {
		t.Fatal("IsRolling true after stop")
	}
}

func TestCapturedAtCarriesTransportTime(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "stamper")
	out, in := registerPair(t, c)

	tr := c.Transport()
	if err := tr.SetTime(42); err != nil {
		t.Fatal(err)
	}

	c.Send(out, []byte{0x90, 0x24, 0x7F}, 0)
	net.Step(2)

	ev, ok, err := c.Receive(in)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%v err=%v", ok, err)
	}
	if ev.CapturedAt < 42 || ev.CapturedAt > 42.1 {
		t.Fatalf("CapturedAt: got %v, want about the located transport time 42", ev.CapturedAt)
	}
}

func TestPortListingsAreFreshValueSnapshots(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "lister")
	registerPair(t, c)

	first, err := c.Ports(contracts.PortQuery{MineOnly: true})
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	second, err := c.Ports(contracts.PortQuery{MineOnly: true})
	if err != nil {
		t.Fatalf("listing again: %v", err)
	}
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d and %d ports, want 2 each", len(first), len(second))
	}
	for i := range first {
		if !first[i].Same(second[i]) {
			t.Fatalf("snapshot %d names differ: %s vs %s",
				i, first[i].QualifiedName(), second[i].QualifiedName())
		}
	}
}

func TestPortListingFilters(t *testing.T) {
	net := newTestNetwork()
	a := newTestClient(t, net, "alpha")
	b := newTestClient(t, net, "beta")
	a.RegisterPort("midi_out", contracts.Output)
	a.RegisterPort("midi_in", contracts.Input)
	b.RegisterPort("midi_out", contracts.Output)

	outs, err := a.Ports(contracts.PortQuery{Dir: contracts.Output})
	if err != nil {
		t.Fatalf("listing outputs: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("output filter: got %d, want 2", len(outs))
	}

	mine, err := a.Ports(contracts.PortQuery{MineOnly: true})
	if err != nil {
		t.Fatalf("listing mine: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("MineOnly: got %d, want 2", len(mine))
	}
	for _, p := range mine {
		if p.ClientName != "alpha" {
			t.Fatalf("MineOnly returned foreign port %s", p.QualifiedName())
		}
	}

	named, err := a.Ports(contracts.PortQuery{NamePattern: `^beta:`})
	if err != nil {
		t.Fatalf("listing by pattern: %v", err)
	}
	if len(named) != 1 || named[0].ClientName != "beta" {
		t.Fatalf("name pattern: got %v", named)
	}

	if _, err := a.Ports(contracts.PortQuery{NamePattern: `[`}); err == nil {
		t.Fatal("invalid regex accepted")
	}
}

func TestCrossClientDelivery(t *testing.T) {
	net := newTestNetwork()
	sender := newTestClient(t, net, "sender")
	receiver := newTestClient(t, net, "receiver")

	out, err := sender.RegisterPort("midi_out", contracts.Output)
	if err != nil {
		t.Fatal(err)
	}
	in, err := receiver.RegisterPort("midi_in", contracts.Input)
	if err != nil {
		t.Fatal(err)
	}
	if err := sender.Connect(out, in); err != nil {
		t.Fatalf("connect across clients: %v", err)
	}

	if err := sender.Send(out, []byte{0x90, 0x40, 0x7F}, 0); err != nil {
		t.Fatal(err)
	}
	net.Step(2)

	ev, ok, err := receiver.Receive(in)
	if err != nil || !ok {
		t.Fatalf("cross-client receive: ok=%v err=%v", ok, err)
	}
	if ev.Data[1] != 0x40 {
		t.Fatalf("cross-client event: got %x", ev.Data)
	}
}

func TestUnregisterPortDiscardsQueue(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "pruner")
	out, in := registerPair(t, c)

	if err := c.UnregisterPort(in); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, _, err := c.Receive(in); !errors.Is(err, contracts.ErrUnknownPort) {
		t.Fatalf("receive on unregistered port: got %v, want ErrUnknownPort", err)
	}
	// The edge went with the port; sending still succeeds and the event
	// simply has nowhere to go.
	if err := c.Send(out, []byte{0x90}, 0); err != nil {
		t.Fatalf("send after peer unregistered: %v", err)
	}
	net.Step(2)
}

func TestOversizedOutgoingEventIsCountedAndSkipped(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "bulky")
	out, in := registerPair(t, c)

	// The server rejects the write; the drain records it and moves on to
	// the next event in the same cycle.
	huge := make([]byte, 600)
	huge[0] = 0xF0
	if err := c.Send(out, huge, 0); err != nil {
		t.Fatalf("sending oversized payload: %v", err)
	}
	noteOn := []byte{0x90, 0x24, 0x7F}
	if err := c.Send(out, noteOn, 0); err != nil {
		t.Fatalf("sending note-on: %v", err)
	}
	net.Step(2)

	if got := c.Stats().OversizedDropped; got != 1 {
		t.Fatalf("OversizedDropped: got %d, want 1", got)
	}
	ev, ok, err := c.Receive(in)
	if err != nil || !ok {
		t.Fatalf("receive after oversized drop: ok=%v err=%v", ok, err)
	}
	if ev.Data[0] != 0x90 {
		t.Fatalf("got %x, want the note-on that followed the dropped event", ev.Data)
	}
	if _, ok, _ := c.Receive(in); ok {
		t.Fatal("the oversized payload was delivered")
	}
}

func TestConnectAfterCloseFailsHardEitherWay(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "latecomer")
	out, _ := c.RegisterPort("midi_out", contracts.Output)
	in, _ := c.RegisterPort("midi_in", contracts.Input)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Connect(out, in); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("connect after close: got %v, want ErrClientClosed", err)
	}
	if err := c.Connect(in, out); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("reversed connect after close: got %v, want ErrClientClosed", err)
	}
	if err := c.Disconnect(out, in); !errors.Is(err, contracts.ErrClientClosed) {
		t.Fatalf("disconnect after close: got %v, want ErrClientClosed", err)
	}
}

func TestDuplicatePortNameRejected(t *testing.T) {
	net := newTestNetwork()
	c := newTestClient(t, net, "dup")
	if _, err := c.RegisterPort("midi_out", contracts.Output); err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterPort("midi_out", contracts.Input); !errors.Is(err, contracts.ErrPortExists) {
		t.Fatalf("duplicate name: got %v, want ErrPortExists", err)
	}
}
