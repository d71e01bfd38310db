// Package diag implements the LINE diagnostics dispatcher (spec §4.4): per
// transport-channel address assignment, the well-known broadcast/unicast
// commands every device supports, and a small fixed-capacity registry of
// user-provided unicast listeners and publishers.
package diag

import (
	"encoding/binary"
	"log"

	"github.com/linebus/line-core/pkg/codec"
)

// Well-known request identifiers (spec §3/§4.4).
const (
	Wakeup                   uint16 = 0x0000
	Idle                     uint16 = 0x0100
	Shutdown                 uint16 = 0x0101
	ConditionalChangeAddress uint16 = 0x01E0

	OpStatusBase    uint16 = 0x0200
	PowerStatusBase uint16 = 0x0210
	SerialBase      uint16 = 0x0220
	SWVersionBase   uint16 = 0x0230
)

// Device addresses: 0x0 is "unassigned" (no unicast response), 0xF is a
// reserved broadcast sub-address, 0x1..0xE are assignable.
const (
	Unassigned        uint8 = 0x0
	BroadcastReserved uint8 = 0xF
	AddressMin        uint8 = 0x1
	AddressMax        uint8 = 0xE
)

// Op-status codes for the OP_STATUS mandatory accessor.
const (
	OpStatusInit      uint8 = 0x00
	OpStatusOK        uint8 = 0x01
	OpStatusWarn      uint8 = 0x02
	OpStatusError     uint8 = 0x03
	OpStatusBoot      uint8 = 0x40
	OpStatusBootError uint8 = 0x41
)

const (
	// DefaultMaxUnicastListeners and DefaultMaxUnicastPublishers are the
	// registry capacities spec §6 names as the default.
	DefaultMaxUnicastListeners  = 8
	DefaultMaxUnicastPublishers = 8

	conditionalChangeAddressPayloadLen = 5
)

// PowerStatus is the mandatory POWER_STATUS response payload.
type PowerStatus struct {
	UMeasured byte
	IOpLo     byte
	IOpHi     byte
	ISleep    byte
}

// SWVersion is the mandatory SW_VERSION response payload.
type SWVersion struct {
	Major    byte
	Minor    byte
	Patch    byte
	Reserved byte
}

// Hooks are the optional well-known-broadcast callouts. A nil field is the
// weak-symbol default: legal, and simply not called.
type Hooks struct {
	OnWakeup                   func()
	OnIdle                     func()
	OnShutdown                 func()
	OnConditionalAddressChange func(oldAddr, newAddr uint8)
}

// Accessors are the optional mandatory-data accessors. Each returns ok=false
// when the host has not wired the underlying value up, in which case
// PrepareResponse declines even for a matched mandatory command.
type Accessors struct {
	OpStatus        func() (uint8, bool)
	PowerStatus     func() (PowerStatus, bool)
	SerialNumber    func() (uint32, bool)
	SoftwareVersion func() (SWVersion, bool)
}

// PublisherFunc produces a unicast response payload into buf, returning the
// number of bytes written and whether it actually wants to answer.
type PublisherFunc func(request uint16, buf []byte) (size int, ok bool)

// ListenerFunc consumes a received unicast payload.
type ListenerFunc func(request uint16, size uint8, payload []byte)

type unicastPublisher struct {
	base uint16
	cb   PublisherFunc
}

type unicastListener struct {
	base uint16
	cb   ListenerFunc
}

// Config sizes a Channel's listener/publisher registries.
type Config struct {
	MaxUnicastListeners  int
	MaxUnicastPublishers int
}

func (c Config) withDefaults() Config {
	if c.MaxUnicastListeners <= 0 {
		c.MaxUnicastListeners = DefaultMaxUnicastListeners
	}
	if c.MaxUnicastPublishers <= 0 {
		c.MaxUnicastPublishers = DefaultMaxUnicastPublishers
	}
	return c
}

// Channel is one diagnostic configuration keyed to a transport channel: the
// assigned address, the well-known callouts/accessors, and the registered
// unicast handlers.
type Channel struct {
	transportChannel int
	address          uint8

	hooks     Hooks
	accessors Accessors

	publishers []unicastPublisher
	listeners  []unicastListener

	logger *log.Logger
}

// NewChannel builds a diagnostics configuration for transportChannel,
// starting unassigned.
func NewChannel(transportChannel int, cfg Config, hooks Hooks, accessors Accessors) *Channel {
	cfg = cfg.withDefaults()
	return &Channel{
		transportChannel: transportChannel,
		address:          Unassigned,
		hooks:            hooks,
		accessors:        accessors,
		publishers:       make([]unicastPublisher, 0, cfg.MaxUnicastPublishers),
		listeners:        make([]unicastListener, 0, cfg.MaxUnicastListeners),
		logger:           log.Default(),
	}
}

// SetLogger overrides the channel's diagnostic logger (default
// log.Default()).
func (c *Channel) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// TransportChannel returns the transport channel index this diagnostics
// configuration is bound to.
func (c *Channel) TransportChannel() int { return c.transportChannel }

// Address returns the currently assigned address (Unassigned if none).
func (c *Channel) Address() uint8 { return c.address }

// SetAddress assigns this device's bus address directly (host-driven,
// e.g. restored from persisted storage at boot — address persistence is
// the host's responsibility per spec §6).
func (c *Channel) SetAddress(addr uint8) { c.address = addr }

// RegisterUnicastPublisher adds a publisher matching unicast_id(base,
// address) at the current address. Registration order is preserved;
// first-match wins at dispatch time. Returns false if the registry is at
// capacity — a programmer error the spec says to refuse silently.
func (c *Channel) RegisterUnicastPublisher(base uint16, cb PublisherFunc) bool {
	if len(c.publishers) >= cap(c.publishers) {
		c.logger.Printf("diag: channel %d: unicast publisher registry full, dropping base 0x%04x", c.transportChannel, base)
		return false
	}
	c.publishers = append(c.publishers, unicastPublisher{base: base, cb: cb})
	return true
}

// RegisterUnicastListener adds a listener matching unicast_id(base,
// address) at the current address. See RegisterUnicastPublisher for
// ordering and overflow behavior.
func (c *Channel) RegisterUnicastListener(base uint16, cb ListenerFunc) bool {
	if len(c.listeners) >= cap(c.listeners) {
		c.logger.Printf("diag: channel %d: unicast listener registry full, dropping base 0x%04x", c.transportChannel, base)
		return false
	}
	c.listeners = append(c.listeners, unicastListener{base: base, cb: cb})
	return true
}

// RespondsTo reports whether request matches a mandatory command or a
// registered publisher at the current address. It does not consult
// accessor availability — a matched mandatory command with no accessor
// still "responds to" the request and declines only later, in
// PrepareResponse.
func (c *Channel) RespondsTo(request uint16) bool {
	if c.address == Unassigned {
		return false
	}
	for _, base := range mandatoryBases {
		if request == codec.UnicastID(base, c.address) {
			return true
		}
	}
	for _, p := range c.publishers {
		if request == codec.UnicastID(p.base, c.address) {
			return true
		}
	}
	return false
}

// ListensTo reports whether request is a well-known broadcast, or a
// registered unicast listener at the current address.
func (c *Channel) ListensTo(request uint16) bool {
	switch request {
	case Wakeup, Idle, Shutdown, ConditionalChangeAddress:
		return true
	}
	if c.address == Unassigned {
		return false
	}
	for _, l := range c.listeners {
		if request == codec.UnicastID(l.base, c.address) {
			return true
		}
	}
	return false
}

var mandatoryBases = []uint16{OpStatusBase, PowerStatusBase, SerialBase, SWVersionBase}

// PrepareResponse fills buf with the response payload for request, using
// the mandatory accessors first and the registered publishers second.
func (c *Channel) PrepareResponse(request uint16, buf []byte) (int, bool) {
	if c.address == Unassigned {
		return 0, false
	}

	switch request {
	case codec.UnicastID(OpStatusBase, c.address):
		if c.accessors.OpStatus == nil {
			return 0, false
		}
		v, ok := c.accessors.OpStatus()
		if !ok || len(buf) < 1 {
			return 0, false
		}
		buf[0] = v
		return 1, true

	case codec.UnicastID(PowerStatusBase, c.address):
		if c.accessors.PowerStatus == nil {
			return 0, false
		}
		v, ok := c.accessors.PowerStatus()
		if !ok || len(buf) < 4 {
			return 0, false
		}
		buf[0], buf[1], buf[2], buf[3] = v.UMeasured, v.IOpLo, v.IOpHi, v.ISleep
		return 4, true

	case codec.UnicastID(SerialBase, c.address):
		if c.accessors.SerialNumber == nil {
			return 0, false
		}
		v, ok := c.accessors.SerialNumber()
		if !ok || len(buf) < 4 {
			return 0, false
		}
		binary.LittleEndian.PutUint32(buf[:4], v)
		return 4, true

	case codec.UnicastID(SWVersionBase, c.address):
		if c.accessors.SoftwareVersion == nil {
			return 0, false
		}
		v, ok := c.accessors.SoftwareVersion()
		if !ok || len(buf) < 4 {
			return 0, false
		}
		buf[0], buf[1], buf[2], buf[3] = v.Major, v.Minor, v.Patch, v.Reserved
		return 4, true
	}

	for _, p := range c.publishers {
		if request == codec.UnicastID(p.base, c.address) {
			return p.cb(request, buf)
		}
	}
	return 0, false
}

// OnRequest dispatches a received frame: well-known broadcasts to their
// callouts, CONDITIONAL_CHANGE_ADDRESS to the address-assignment state
// machine, and everything else to the first matching registered listener.
func (c *Channel) OnRequest(request uint16, size uint8, payload []byte) {
	switch request {
	case Wakeup:
		if c.hooks.OnWakeup != nil {
			c.hooks.OnWakeup()
		}
		return
	case Idle:
		if c.hooks.OnIdle != nil {
			c.hooks.OnIdle()
		}
		return
	case Shutdown:
		if c.hooks.OnShutdown != nil {
			c.hooks.OnShutdown()
		}
		return
	case ConditionalChangeAddress:
		c.handleConditionalChangeAddress(size, payload)
		return
	}

	if c.address == Unassigned {
		return
	}
	for _, l := range c.listeners {
		if request == codec.UnicastID(l.base, c.address) {
			l.cb(request, size, payload)
			return
		}
	}
}

// handleConditionalChangeAddress implements the CONDITIONAL_CHANGE_ADDRESS
// broadcast (spec §4.4). A malformed payload (wrong length) is dropped
// without error, mirroring an unreliable-bus-tolerant design.
func (c *Channel) handleConditionalChangeAddress(size uint8, payload []byte) {
	if size != conditionalChangeAddressPayloadLen || len(payload) < conditionalChangeAddressPayloadLen {
		return
	}

	targetSerial := binary.LittleEndian.Uint32(payload[0:4])
	newAddr := payload[4]

	mySerial, haveSerial := uint32(0), false
	if c.accessors.SerialNumber != nil {
		mySerial, haveSerial = c.accessors.SerialNumber()
	}

	switch {
	case haveSerial && targetSerial == mySerial:
		old := c.address
		c.address = newAddr
		if c.hooks.OnConditionalAddressChange != nil {
			c.hooks.OnConditionalAddressChange(old, newAddr)
		}
	case newAddr == c.address:
		// Another device just claimed our address: release it.
		c.address = Unassigned
	default:
		// Neither us nor a claim on our address: ignore.
	}
}
