// Package orchestra implements the point-to-point and tree-relay messaging
// substrate (§4.3, §4.5, §4.6): a bind+accept loop, per-peer outbound
// connect-with-retry, fixed-width header framing, chunked streaming, and
// the broadcast/relay engines built on top of it.
//
// Documentation Last Review: 30.07.2026
package orchestra

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tomm2000/swirlc"
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/sync/semaphore"
	"golang.org/x/xerrors"
)

const (
	// DefaultFrameSize is H, the fixed-width header frame shared by every
	// peer (§6).
	DefaultFrameSize = 2048

	// ChunkSize bounds the streaming body buffer (§4.3 "backpressure").
	ChunkSize = 8 * 1024 * 1024

	// DialRetryInterval is the fixed backoff between outbound connect
	// attempts (§4.3 "connect-with-retry").
	DialRetryInterval = 10 * time.Millisecond

	// PollInterval is the fixed interval ReceiveBlocking polls the
	// incoming registry at (§4.3, §9).
	PollInterval = 10 * time.Millisecond

	// DefaultConnectionLimit is the number of permits in the global
	// connection-limit semaphore (§5).
	DefaultConnectionLimit = 128
)

// incomingKey demultiplexes arriving messages (§3 "Incoming registry").
type incomingKey struct {
	origin    addr.LocationID
	messageID string
}

// incomingEntry pairs a decoded header with its still-open body stream. The
// accept loop parks it; a matching ReceiveBlocking takes ownership on
// removal.
type incomingEntry struct {
	header wire.MessageHeader
	conn   net.Conn
}

// Orchestra is one process's messaging substrate: one instance per
// location, shared by every Swirl operation running in that process.
type Orchestra struct {
	self      addr.LocationID
	dir       *addr.Directory
	frameSize int

	listener  net.Listener
	closeOnce sync.Once

	mu       sync.RWMutex
	incoming map[incomingKey]incomingEntry

	permits *semaphore.Weighted

	log zerolog.Logger
}

// New creates an Orchestra for the location named by dir.SelfID(). It does
// not yet listen; call AcceptLoop to start accepting connections.
func New(dir *addr.Directory) *Orchestra {
	self := dir.SelfID()

	return &Orchestra{
		self:      self,
		dir:       dir,
		frameSize: DefaultFrameSize,
		incoming:  make(map[incomingKey]incomingEntry),
		permits:   semaphore.NewWeighted(DefaultConnectionLimit),
		log:       swirlc.Logger.With().Str("role", "orchestra").Int("self", int(self)).Logger(),
	}
}

// Self returns the LocationID of this process.
func (o *Orchestra) Self() addr.LocationID { return o.self }

// Directory returns the address directory this Orchestra was built with.
func (o *Orchestra) Directory() *addr.Directory { return o.dir }

// AcceptLoop binds the local address and accepts connections until ctx is
// canceled or Close is called. Each accepted connection is read for one
// fixed-width header and parked in the incoming registry under
// (origin, message-id); the loop then returns to accept.
//
// AcceptLoop blocks; run it in its own goroutine.
func (o *Orchestra) AcceptLoop(ctx context.Context) error {
	info, err := o.dir.InfoOf(o.self)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", info.Address)
	if err != nil {
		return xerrors.Errorf("failed to bind %s: %v", info.Address, err)
	}
	o.listener = ln

	o.log.Info().Str("address", info.Address).Msg("accept loop listening")

	go func() {
		<-ctx.Done()
		o.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				o.log.Info().Msg("accept loop shutting down")
				return nil
			}
			return xerrors.Errorf("accept failed: %v", err)
		}

		go o.handleConn(conn)
	}
}

// Close releases the listener, if any. It is idempotent: AcceptLoop's own
// shutdown goroutine closes the same listener on context cancellation, and
// a caller awaiting AcceptLoop's return before also calling Close must not
// see that race surface as an error.
func (o *Orchestra) Close() error {
	if o.listener == nil {
		return nil
	}

	var err error
	o.closeOnce.Do(func() {
		err = o.listener.Close()
	})
	return err
}

func (o *Orchestra) handleConn(conn net.Conn) {
	frame := make([]byte, o.frameSize)

	if _, err := readFull(conn, frame); err != nil {
		o.log.Error().Err(err).Msg("failed to read incoming header frame")
		conn.Close()
		return
	}

	header, err := wire.Decode(frame)
	if err != nil {
		o.log.Error().Err(err).Msg("failed to decode incoming header")
		conn.Close()
		return
	}

	key := incomingKey{origin: header.Origin, messageID: header.MessageID}

	o.mu.Lock()
	if _, exists := o.incoming[key]; exists {
		o.mu.Unlock()
		o.log.Error().
			Int("origin", int(header.Origin)).
			Str("message-id", header.MessageID).
			Msg("duplicate (origin, message-id) arrival, dropping connection")
		conn.Close()
		return
	}
	o.incoming[key] = incomingEntry{header: header, conn: conn}
	o.mu.Unlock()
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
