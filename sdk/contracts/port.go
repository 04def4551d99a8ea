package contracts

// Direction tells whether a port consumes or produces MIDI data. It is fixed
// at port creation and never changes afterwards.
type Direction int

const (
	// Input ports receive MIDI events from the patch graph.
	Input Direction = iota + 1
	// Output ports emit MIDI events into the patch graph.
	Output
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// PortFlags is a bitmask of server-side port attributes.
type PortFlags uint32

const (
	// Physical marks ports that correspond to hardware terminals.
	Physical PortFlags = 1 << iota
	// CanMonitor marks ports whose input can be monitored by the server.
	CanMonitor
	// Terminal marks ports at the end of a signal chain.
	Terminal
)

// Port is a value snapshot of a port on the patch server. Two Port values
// naming the same underlying port are distinct objects; compare them with
// Same (by qualified name), never by identity.
type Port struct {
	ClientName string
	Name       string
	Dir        Direction
	Flags      PortFlags
}

// QualifiedName returns the server-unique "client:port" name.
func (p Port) QualifiedName() string {
	return p.ClientName + ":" + p.Name
}

// Same reports whether both values refer to the same underlying port.
func (p Port) Same(other Port) bool {
	return p.QualifiedName() == other.QualifiedName()
}

// IsInput reports whether the port receives events.
func (p Port) IsInput() bool { return p.Dir == Input }

// IsOutput reports whether the port emits events.
func (p Port) IsOutput() bool { return p.Dir == Output }

// PortQuery filters a port listing. Zero value matches every port on the
// server. NamePattern and TypePattern are regular expressions; Flags, when
// non-zero, requires all of the given flags; MineOnly restricts the listing
// to ports owned by the querying client.
type PortQuery struct {
	NamePattern string
	TypePattern string
	Flags       PortFlags
	Dir         Direction // zero matches both directions
	MineOnly    bool
}
