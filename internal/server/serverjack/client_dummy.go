//go:build !jack
// +build !jack

package serverjack

import (
	"fmt"

	"github.com/jessecrossen/jackpatch/internal/server"
	"github.com/jessecrossen/jackpatch/sdk/contracts"
)

// Dial on builds without the "jack" tag has no daemon to talk to.
func Dial(clientName string) (server.Session, error) {
	return nil, fmt.Errorf("%w: built without the jack tag", contracts.ErrServerUnavailable)
}
