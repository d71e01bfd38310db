// Package bus is the ambient-stack glue that the spec's "Per-channel
// multiplicity" design note (§9) calls for: a fixed, host-owned collection
// of transport channels, each routed through one diagnostics dispatcher and
// an optional application API layer. This is the piece cmd/line-gateway
// talks to; it is not itself part of the protocol's core state machine.
package bus

import (
	"fmt"

	"github.com/linebus/line-core/pkg/diag"
	"github.com/linebus/line-core/pkg/router"
	"github.com/linebus/line-core/pkg/transport"
)

// Bus owns every configured channel's transport state machine and
// diagnostics configuration, referenced (not copied) by the host per §9's
// "self-contained value with its own buffers" guidance.
type Bus struct {
	api        router.Handler
	diag       *diag.Dispatcher
	router     *router.Router
	transports map[int]*transport.Channel
	diagChans  map[int]*diag.Channel
}

// New builds an empty bus. api is the application-specific handler layer;
// nil is legal and yields the diagnostics-only default policy (spec §4.3).
func New(api router.Handler) *Bus {
	d := diag.NewDispatcher()
	return &Bus{
		api:        api,
		diag:       d,
		router:     router.New(d, api),
		transports: make(map[int]*transport.Channel),
		diagChans:  make(map[int]*diag.Channel),
	}
}

// AddChannel configures one bus channel: its diagnostics identity (address
// starts Unassigned, well-known hooks/accessors) and its transport state
// machine (one-wire/two-wire mode, buffer sizes, the host's write callouts
// and upward observer). index must be unique; adding the same index twice
// replaces the prior configuration.
func (b *Bus) AddChannel(
	index int,
	oneWire bool,
	transportCfg transport.Config,
	callouts transport.Callouts,
	observer transport.Observer,
	diagCfg diag.Config,
	hooks diag.Hooks,
	accessors diag.Accessors,
) *diag.Channel {
	dc := diag.NewChannel(index, diagCfg, hooks, accessors)
	b.diag.AddChannel(dc)
	b.diagChans[index] = dc

	tc := transport.NewChannel(index, oneWire, transportCfg, b.router, callouts, observer)
	b.transports[index] = tc

	return dc
}

// Receive feeds one byte arrived on the given channel. Per spec §5 the
// byte-producer and ticker for the same channel must not be called
// concurrently; different channels may run on independent goroutines.
func (b *Bus) Receive(channel int, by byte) error {
	tc, ok := b.transports[channel]
	if !ok {
		return fmt.Errorf("bus: unknown channel %d", channel)
	}
	tc.Receive(by)
	return nil
}

// Update ages the timeout clock for the given channel by elapsedMs
// milliseconds.
func (b *Bus) Update(channel int, elapsedMs uint32) error {
	tc, ok := b.transports[channel]
	if !ok {
		return fmt.Errorf("bus: unknown channel %d", channel)
	}
	tc.Update(elapsedMs)
	return nil
}

// UpdateAll ages every configured channel's timeout clock by elapsedMs; the
// convenience a single-ticker-goroutine host wants (spec §5).
func (b *Bus) UpdateAll(elapsedMs uint32) {
	for _, tc := range b.transports {
		tc.Update(elapsedMs)
	}
}

// Request sends a master-mode request on the given channel.
func (b *Bus) Request(channel int, requestID uint16) error {
	tc, ok := b.transports[channel]
	if !ok {
		return fmt.Errorf("bus: unknown channel %d", channel)
	}
	tc.Request(requestID)
	return nil
}

// Transport returns the transport channel at index, or nil.
func (b *Bus) Transport(index int) *transport.Channel { return b.transports[index] }

// Diag returns the diagnostics channel at index, or nil.
func (b *Bus) Diag(index int) *diag.Channel { return b.diagChans[index] }
