package jackpatch

import (
	"fmt"

	"github.com/jessecrossen/jackpatch/internal/bridge"
	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/internal/server/serverjack"
	"github.com/jessecrossen/jackpatch/internal/server/serversim"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// Driver names accepted by WithDriver.
const (
	// DriverSim runs against the in-process simulated patch server.
	DriverSim = "sim"
	// DriverJack runs against a jackd daemon (requires the jack build tag).
	DriverJack = "jack"
)

// driverDialers maps driver names to server backend dialers.
var driverDialers = map[string]func(*contracts.ClientOptions) server.DialFunc{
	DriverSim:  simDialer,
	DriverJack: jackDialer,
}

// NewClient builds a patch client for the driver named in opts.
//
// opts *contracts.ClientOptions: Configuration options for the patch client.
//
// Returns:
//   - contracts.PatchClient: An instance of the patch client.
//   - error: An error if the driver is unsupported.
func NewClient(opts *contracts.ClientOptions) (contracts.PatchClient, error) {
	dialer, exists := driverDialers[opts.Driver]
	if !exists {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnsupportedDriver, opts.Driver)
	}
	return bridge.NewClient(opts, dialer(opts)), nil
}

func simDialer(opts *contracts.ClientOptions) server.DialFunc {
	return serversim.Default(opts.Sim).Dial
}

func jackDialer(opts *contracts.ClientOptions) server.DialFunc {
	return serverjack.Dial
}
