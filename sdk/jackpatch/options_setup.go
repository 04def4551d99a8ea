package jackpatch

import (
	"github.com/jessecrossen/jackpatch/internal/logger"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// applyDefaultOptions sets default values for ClientOptions if not explicitly provided.
//
// opts ...contracts.Option: A variadic list of option functions that can modify ClientOptions.
//
// Returns:
//   - contracts.ClientOptions: A structure containing the finalized client options with defaults applied.
//   - error: An error if there was an issue applying the options.
func applyDefaultOptions(opts ...contracts.Option) (contracts.ClientOptions, error) {
	options := &contracts.ClientOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Set defaults if options are not provided
	if options.Logger == nil {
		options.Logger = logger.NewZapLogger()
	}
	if options.LogLevel == 0 {
		options.LogLevel = contracts.InfoLevel
	}
	if options.ClientName == "" {
		options.ClientName = "jackpatch"
	}
	if options.Driver == "" {
		options.Driver = DriverSim
	}

	options.Logger.SetLevel(options.LogLevel)
	return *options, nil
}
