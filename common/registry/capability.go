package registry

import (
	"context"
	"fmt"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/runner"
	"go.uber.org/zap"
)

// Capability is an optional docker feature some operations depend on.
type Capability string

const (
	// Buildx is required for multi-platform builds.
	Buildx Capability = "buildx"
)

type capabilityState struct {
	available bool
	detail    string
}

var capabilityProbes = map[Capability][]string{
	Buildx: {"buildx", "version"},
}

// RequireCapability returns nil if docker supports the capability. Only positive and negative
// answers are cached. Failures to run docker at all are returned and retried on the next call.
func (c *Client) RequireCapability(ctx context.Context, capability Capability) error {
	c.mu.Lock()
	state, ok := c.capabilities[capability]
	c.mu.Unlock()
	if !ok {
		args, known := capabilityProbes[capability]
		if !known {
			return fmt.Errorf("%w: %s", ErrUnsupportedFeature, capability)
		}
		result := c.runner.Run(ctx, runner.New("docker", args...).WithTimeout(probeTimeout))
		switch result.ErrorKind {
		case outcome.None:
			state = capabilityState{available: true, detail: result.Stdout}
		case outcome.ProcessFailure:
			state = capabilityState{available: false, detail: result.Stderr}
		default:
			return result.AsError()
		}
		c.mu.Lock()
		c.capabilities[capability] = state
		c.mu.Unlock()
		c.log.Debug("detected docker capability", zap.String("capability", string(capability)), zap.Bool("available", state.available))
	}
	if !state.available {
		return fmt.Errorf("%w: %s", ErrUnsupportedFeature, capability)
	}
	return nil
}
