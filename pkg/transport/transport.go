// Package transport implements the LINE bus channel state machine: framing,
// parity and checksum validation, one-wire/two-wire response timing, and
// header/data timeout handling. One Channel value models one independent bus
// instance; channels share no state.
package transport

import (
	"log"

	"github.com/linebus/line-core/pkg/codec"
)

// State is a receive state-machine position for one channel.
type State int

const (
	WaitSync State = iota
	WaitReqHi
	WaitReqLo
	WaitSize
	WaitData
	WaitChecksum
)

func (s State) String() string {
	switch s {
	case WaitSync:
		return "WaitSync"
	case WaitReqHi:
		return "WaitReqHi"
	case WaitReqLo:
		return "WaitReqLo"
	case WaitSize:
		return "WaitSize"
	case WaitData:
		return "WaitData"
	case WaitChecksum:
		return "WaitChecksum"
	default:
		return "Unknown"
	}
}

// ErrorKind identifies why a frame was rejected.
type ErrorKind int

const (
	Timeout ErrorKind = iota
	HeaderInvalid
	DataInvalid
	PartialData
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case HeaderInvalid:
		return "HeaderInvalid"
	case DataInvalid:
		return "DataInvalid"
	case PartialData:
		return "PartialData"
	default:
		return "Unknown"
	}
}

// RequestTimeoutMs and DataTimeoutMs are the inter-byte stall thresholds, in
// the same millisecond units as Channel.Update's elapsed argument.
const (
	RequestTimeoutMs uint32 = 5
	DataTimeoutMs    uint32 = 5

	DefaultRXBufferSize = 255
	DefaultTXBufferSize = 255
)

// Responder is the application-layer side of the channel: it decides whether
// this device answers a given request, fills in the response payload, and
// is notified of every successfully framed request that this device did not
// itself answer (the router in
// pkg/router implements this by delegating to diagnostics and/or API
// handlers).
type Responder interface {
	RespondsTo(channel int, request uint16) bool
	// PrepareResponse fills buf (capacity TXBufferSize) with the response
	// payload and returns the number of bytes written and whether the
	// device still wants to answer. Returning ok=false means the device
	// changed its mind after RespondsTo returned true.
	PrepareResponse(channel int, request uint16, buf []byte) (size int, ok bool)
	OnRequest(channel int, request uint16, size uint8, payload []byte)
}

// Callouts is the narrow interface the core uses to emit bytes. The
// physical serial layer (UART, RS-485 driver, ...) is an external
// collaborator that implements this.
type Callouts interface {
	WriteResponse(channel int, size uint8, payload []byte, checksum uint8)
	WriteRequest(channel int, requestWord uint16)
}

// NopCallouts is the zero-effort default for a receive-only build, matching
// the weak-symbol-default pattern described in spec §9: not providing a
// transmit hook is legal.
type NopCallouts struct{}

func (NopCallouts) WriteResponse(int, uint8, []byte, uint8) {}
func (NopCallouts) WriteRequest(int, uint16)                {}

// Observer receives host-visible callbacks: a successfully decoded frame,
// or an error that returned the channel to WaitSync.
type Observer interface {
	OnData(channel int, responding bool, request uint16, size uint8, payload []byte)
	OnError(channel int, responding bool, request uint16, kind ErrorKind)
}

// NopObserver discards every callback.
type NopObserver struct{}

func (NopObserver) OnData(int, bool, uint16, uint8, []byte) {}
func (NopObserver) OnError(int, bool, uint16, ErrorKind)    {}

// Config sizes a Channel's receive/transmit buffers. Zero fields fall back
// to the protocol's default of 255 bytes (spec §6).
type Config struct {
	RXBufferSize int
	TXBufferSize int
}

func (c Config) withDefaults() Config {
	if c.RXBufferSize <= 0 {
		c.RXBufferSize = DefaultRXBufferSize
	}
	if c.TXBufferSize <= 0 {
		c.TXBufferSize = DefaultTXBufferSize
	}
	return c
}

// Channel is one independent bus instance: one UART, one wire pair. It owns
// its receive/transmit buffers exclusively; callbacks are only ever handed
// a borrowed slice into them for the duration of the call.
type Channel struct {
	index        int
	oneWire      bool
	state        State
	timestamp    uint32
	lastReceived uint32

	curRequest    uint16
	curResponding bool
	curSize       uint8
	curCount      uint8
	curChecksum   uint8

	rxBuffer []byte
	txBuffer []byte
	txSize   uint8

	responder Responder
	callouts  Callouts
	observer  Observer
	logger    *log.Logger
}

// NewChannel constructs a channel bound to the given index (used only to
// identify the channel in callouts/callbacks — the host is responsible for
// routing bytes to the right Channel value). responder, callouts, and
// observer may be nil; nil is treated as the corresponding Nop* default.
func NewChannel(index int, oneWire bool, cfg Config, responder Responder, callouts Callouts, observer Observer) *Channel {
	cfg = cfg.withDefaults()
	if callouts == nil {
		callouts = NopCallouts{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	c := &Channel{
		index:     index,
		rxBuffer:  make([]byte, cfg.RXBufferSize),
		txBuffer:  make([]byte, cfg.TXBufferSize),
		responder: responder,
		callouts:  callouts,
		observer:  observer,
		logger:    log.Default(),
	}
	c.Init(oneWire)
	return c
}

// SetLogger overrides the channel's diagnostic logger (default
// log.Default()), matching the teacher's pattern of package-level logging
// through the stdlib log package.
func (c *Channel) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Init resets the channel to WaitSync, zeros the timeout clock, and records
// the wire mode. Safe to call again to reconfigure one-wire/two-wire mode
// on an idle channel.
func (c *Channel) Init(oneWire bool) {
	c.oneWire = oneWire
	c.state = WaitSync
	c.timestamp = 0
	c.lastReceived = 0
	c.curRequest = 0
	c.curResponding = false
	c.curSize = 0
	c.curCount = 0
	c.curChecksum = 0
	c.txSize = 0
}

// State returns the channel's current receive state, chiefly for tests and
// diagnostics.
func (c *Channel) State() State { return c.state }

// Index returns the channel index it was constructed with.
func (c *Channel) Index() int { return c.index }

// Receive feeds one byte arrived on the bus and advances the state machine.
func (c *Channel) Receive(b byte) {
	c.lastReceived = c.timestamp

	switch c.state {
	case WaitSync:
		if b == codec.SYNC {
			c.state = WaitReqHi
		}

	case WaitReqHi:
		c.curRequest = uint16(b) << 8
		c.state = WaitReqLo

	case WaitReqLo:
		c.receiveReqLo(b)

	case WaitSize:
		c.curSize = b
		c.curCount = 0
		c.curChecksum = b + codec.CHECKSUM_OFFSET
		if c.curSize == 0 {
			c.state = WaitChecksum
		} else {
			c.state = WaitData
		}

	case WaitData:
		c.receiveData(b)

	case WaitChecksum:
		c.receiveChecksum(b)
	}
}

func (c *Channel) receiveReqLo(b byte) {
	word := c.curRequest | uint16(b)
	if !codec.ValidParity(word) {
		c.curResponding = false
		c.state = WaitSync
		c.raiseError(HeaderInvalid)
		return
	}

	c.curRequest = word & 0x3FFF
	c.curResponding = c.responder != nil && c.responder.RespondsTo(c.index, c.curRequest)
	c.state = WaitSize

	if !c.curResponding {
		return
	}

	size, ok := c.responder.PrepareResponse(c.index, c.curRequest, c.txBuffer)
	if !ok {
		// The device matched but declined at the last moment: stay in
		// WaitSize and passively observe whatever the bus produces.
		return
	}
	if size < 0 {
		size = 0
	}
	if size > len(c.txBuffer) {
		size = len(c.txBuffer)
	}
	c.txSize = uint8(size)

	checksum := codec.Checksum(c.txBuffer[:c.txSize])
	if c.oneWire {
		// Stay in WaitSize: we will hear our own transmission come back
		// through Receive and must consume it as framing, not as a new
		// request.
		c.callouts.WriteResponse(c.index, c.txSize, c.txBuffer[:c.txSize], checksum)
	} else {
		c.callouts.WriteResponse(c.index, c.txSize, c.txBuffer[:c.txSize], checksum)
		c.state = WaitSync
	}
}

func (c *Channel) receiveData(b byte) {
	if c.curCount >= c.curSize {
		return
	}
	if int(c.curSize) <= len(c.rxBuffer) {
		c.rxBuffer[c.curCount] = b
	}
	c.curChecksum += b
	c.curCount++
	if c.curCount == c.curSize {
		c.state = WaitChecksum
	}
}

func (c *Channel) receiveChecksum(b byte) {
	if int(c.curSize) > len(c.rxBuffer) {
		c.state = WaitSync
		c.raiseError(PartialData)
		return
	}

	c.state = WaitSync
	if b != c.curChecksum {
		c.raiseError(DataInvalid)
		return
	}

	payload := c.rxBuffer[:c.curSize]
	if c.responder != nil && !c.curResponding {
		c.responder.OnRequest(c.index, c.curRequest, c.curSize, payload)
	}
	c.observer.OnData(c.index, c.curResponding, c.curRequest, c.curSize, payload)
}

// Update advances the timeout clock by elapsed milliseconds and fires a
// Timeout error if the channel has stalled mid-frame.
func (c *Channel) Update(elapsed uint32) {
	c.timestamp += elapsed

	switch c.state {
	case WaitReqHi, WaitReqLo:
		if c.timestamp-c.lastReceived > RequestTimeoutMs {
			c.state = WaitSync
			c.raiseError(Timeout)
		}
	case WaitSize, WaitData, WaitChecksum:
		if c.timestamp-c.lastReceived > DataTimeoutMs {
			c.state = WaitSync
			c.raiseError(Timeout)
		}
	}
}

// Request sends a master-mode request. If the channel is mid-frame the
// request is silently dropped (bus busy). In two-wire mode the channel
// transitions to WaitSize to receive the slave's response body; in
// one-wire mode the device will hear its own transmission echo back
// through Receive and needs no state change here.
func (c *Channel) Request(requestID uint16) {
	if c.state != WaitSync {
		return
	}
	c.callouts.WriteRequest(c.index, codec.RequestCode(requestID))
	if !c.oneWire {
		c.state = WaitSize
	}
}

func (c *Channel) raiseError(kind ErrorKind) {
	c.logger.Printf("transport: channel %d: %s (request 0x%04x)", c.index, kind, c.curRequest)
	c.observer.OnError(c.index, c.curResponding, c.curRequest, kind)
}
