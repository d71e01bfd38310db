package diag

// Dispatcher fans a router.Handler query out to the diagnostics Channel
// bound to the transport channel index named in the query. It is the
// piece spec §4.4 calls "per transport channel": one Dispatcher serves
// every configured bus, each backed by its own Channel.
type Dispatcher struct {
	channels map[int]*Channel
}

// NewDispatcher builds an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{channels: make(map[int]*Channel)}
}

// AddChannel registers ch under its own TransportChannel() index.
func (d *Dispatcher) AddChannel(ch *Channel) {
	d.channels[ch.TransportChannel()] = ch
}

// Channel returns the diagnostics configuration bound to transportChannel,
// or nil if none was registered.
func (d *Dispatcher) Channel(transportChannel int) *Channel {
	return d.channels[transportChannel]
}

func (d *Dispatcher) RespondsTo(channel int, request uint16) bool {
	ch := d.channels[channel]
	if ch == nil {
		return false
	}
	return ch.RespondsTo(request)
}

func (d *Dispatcher) ListensTo(channel int, request uint16) bool {
	ch := d.channels[channel]
	if ch == nil {
		return false
	}
	return ch.ListensTo(request)
}

func (d *Dispatcher) PrepareResponse(channel int, request uint16, buf []byte) (int, bool) {
	ch := d.channels[channel]
	if ch == nil {
		return 0, false
	}
	return ch.PrepareResponse(request, buf)
}

func (d *Dispatcher) OnRequest(channel int, request uint16, size uint8, payload []byte) {
	ch := d.channels[channel]
	if ch == nil {
		return
	}
	ch.OnRequest(request, size, payload)
}
