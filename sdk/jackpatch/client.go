package jackpatch

import (
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// NewPatchClient creates a new patch client with the specified options.
// It applies default options and builds the client against the configured
// server driver. The client starts closed; call Open to connect.
//
// opts ...contracts.Option: A variadic list of option functions to customize the client configuration.
//
// Returns:
//   - contracts.PatchClient: An instance of the patch client.
//   - error: An error, if any occurred during the creation of the client.
func NewPatchClient(opts ...contracts.Option) (contracts.PatchClient, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(&options)
	if err != nil {
		return nil, err
	}

	return client, nil
}
