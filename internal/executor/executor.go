// Package executor defines the boundary to the device-side protocol. The
// control plane and the agent runner only ever see this interface; how an
// implementation talks to physical hardware is outside this system.
package executor

import (
	"context"

	"github.com/fleetops/go-command-plane/internal/domain"
)

// Result is the outcome of executing one command against one device.
// A zero Code means success; nonzero codes are device-protocol specific.
type Result struct {
	Code    int
	Message string
}

// DeviceExecutor executes a command payload against a single target device.
//
// Implementations must honor the context for cancellation and timeouts and
// must be safe for concurrent use: the runner may fan a multi-target
// command out across devices.
type DeviceExecutor interface {
	Execute(ctx context.Context, commandType domain.CommandType, params string, targetID string) (Result, error)
}

// Func adapts a plain function to the DeviceExecutor interface.
type Func func(ctx context.Context, commandType domain.CommandType, params string, targetID string) (Result, error)

// Execute implements DeviceExecutor.
func (f Func) Execute(ctx context.Context, commandType domain.CommandType, params string, targetID string) (Result, error) {
	return f(ctx, commandType, params, targetID)
}
