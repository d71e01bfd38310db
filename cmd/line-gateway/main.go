// Command line-gateway hosts a single LINE bus channel against a real UART
// and forwards decoded requests/errors to Redis, mirroring the wiring
// style of the teacher's cmd/bluetooth-service/main.go: flag-configured
// devices, a read-loop goroutine, a ticker goroutine, and graceful
// shutdown on SIGINT/SIGTERM.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/linebus/line-core/pkg/bus"
	"github.com/linebus/line-core/pkg/diag"
	lineredis "github.com/linebus/line-core/pkg/redis"
	"github.com/linebus/line-core/pkg/trace"
	"github.com/linebus/line-core/pkg/transport"
)

var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path")
	baudRate     = flag.Int("baud", 19200, "Serial baud rate")
	oneWire      = flag.Bool("one-wire", false, "Run the bus in one-wire (half-duplex, self-hearing) mode")
	address      = flag.Uint("address", uint(diag.Unassigned), "Initial diagnostics address (0x1-0xE, 0 = unassigned)")
	serialNumber = flag.Uint64("serial-number", 0, "Device serial number reported by the SERIAL diagnostic command")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
	tracePushKey = flag.String("trace-key", "line:trace", "Redis list key traced frames/errors are LPUSH'd to")
)

// Redis keys the gateway writes diagnostics state under.
const (
	keyLineState = "line"

	fieldAddress   = "address"
	fieldOpStatus  = "op_status"
	fieldLastError = "last_error"
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting LINE gateway")
	log.Printf("Serial device: %s (baud %d, one-wire=%v)", *serialDevice, *baudRate, *oneWire)
	log.Printf("Redis address: %s", *redisAddr)

	redisClient, err := lineredis.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis")

	mode := &serial.Mode{
		BaudRate: *baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(*serialDevice, mode)
	if err != nil {
		log.Fatalf("Failed to open serial port: %v", err)
	}
	defer port.Close()
	port.SetReadTimeout(100 * time.Millisecond)
	log.Printf("Serial port open")

	observer := &redisObserver{redis: redisClient}
	callouts := &serialCallouts{port: port}

	b := bus.New(nil)
	dc := b.AddChannel(0, *oneWire, transport.Config{}, callouts, observer, diag.Config{},
		diag.Hooks{
			OnWakeup:   func() { log.Printf("channel 0: WAKEUP") },
			OnIdle:     func() { log.Printf("channel 0: IDLE") },
			OnShutdown: func() { log.Printf("channel 0: SHUTDOWN") },
			OnConditionalAddressChange: func(oldAddr, newAddr uint8) {
				log.Printf("channel 0: address change 0x%x -> 0x%x", oldAddr, newAddr)
				if err := redisClient.WriteAndPublishInt(keyLineState, fieldAddress, int(newAddr)); err != nil {
					log.Printf("Failed to publish address change: %v", err)
				}
			},
		},
		diag.Accessors{
			OpStatus:     func() (uint8, bool) { return diag.OpStatusOK, true },
			SerialNumber: func() (uint32, bool) { return uint32(*serialNumber), true },
			SoftwareVersion: func() (diag.SWVersion, bool) {
				return diag.SWVersion{Major: 0, Minor: 1, Patch: 0}, true
			},
		},
	)
	dc.SetAddress(uint8(*address))

	if err := redisClient.WriteAndPublishInt(keyLineState, fieldAddress, int(dc.Address())); err != nil {
		log.Printf("Warning publishing initial address: %v", err)
	}

	stopCh := make(chan struct{})
	go readLoop(port, b, stopCh)
	go tickerLoop(b, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopCh)
	log.Printf("Shutting down...")
}

// readLoop is the byte-producer entry point described in spec §5: it owns
// the serial port exclusively and feeds every arrived byte to the bus.
func readLoop(port serial.Port, b *bus.Bus, stop <-chan struct{}) {
	buf := make([]byte, 1)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			log.Printf("Serial read error: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		if err := b.Receive(0, buf[0]); err != nil {
			log.Printf("bus.Receive: %v", err)
		}
	}
}

// tickerLoop is the 1ms-cadence clock described in spec §5.
func tickerLoop(b *bus.Bus, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.UpdateAll(1)
		}
	}
}

// serialCallouts implements transport.Callouts by writing straight through
// the serial port, generalizing the teacher's USOCK.WriteWithFrameID
// write-the-whole-frame-at-once style.
type serialCallouts struct {
	port serial.Port
}

func (s *serialCallouts) WriteResponse(channel int, size uint8, payload []byte, checksum uint8) {
	frame := make([]byte, 0, int(size)+2)
	frame = append(frame, size)
	frame = append(frame, payload[:size]...)
	frame = append(frame, checksum)
	if _, err := s.port.Write(frame); err != nil {
		log.Printf("channel %d: failed to write response: %v", channel, err)
	}
}

func (s *serialCallouts) WriteRequest(channel int, requestWord uint16) {
	frame := []byte{0x55, byte(requestWord >> 8), byte(requestWord)}
	if _, err := s.port.Write(frame); err != nil {
		log.Printf("channel %d: failed to write request: %v", channel, err)
	}
}

// redisObserver implements transport.Observer by mirroring decoded state
// into Redis, generalizing pkg/redis's WriteAndPublish* pattern and tracing
// the raw event via CBOR for offline inspection.
type redisObserver struct {
	redis *lineredis.Client
}

func (r *redisObserver) OnData(channel int, responding bool, request uint16, size uint8, payload []byte) {
	log.Printf("channel %d: request 0x%04x size=%d responding=%v", channel, request, size, responding)
	if err := r.redis.WriteAndPublishInt(keyLineState, fieldOpStatus, int(request)); err != nil {
		log.Printf("Failed to publish decoded request: %v", err)
	}
	r.pushTrace(trace.NewDataEvent(channel, responding, request, size, payload))
}

func (r *redisObserver) OnError(channel int, responding bool, request uint16, kind transport.ErrorKind) {
	log.Printf("channel %d: error %s (request 0x%04x responding=%v)", channel, kind, request, responding)
	if err := r.redis.WriteAndPublishString(keyLineState, fieldLastError, kind.String()); err != nil {
		log.Printf("Failed to publish error: %v", err)
	}
	r.pushTrace(trace.NewErrorEvent(channel, responding, request, kind))
}

// pushTrace stamps ev with the time it was observed and LPUSHes the
// CBOR-encoded result, so offline inspection can reconstruct event order
// and timing even though the trace package itself never calls time.Now.
func (r *redisObserver) pushTrace(ev trace.Event) {
	raw, err := trace.EncodeStamp(trace.Stamp{AtUnixNano: time.Now().UnixNano(), Event: ev})
	if err != nil {
		log.Printf("Failed to encode trace event: %v", err)
		return
	}
	if err := r.redis.LPush(*tracePushKey, string(raw)); err != nil {
		log.Printf("Failed to push trace event: %v", err)
	}
}
