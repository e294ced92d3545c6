// Package swirl implements the dataflow layer (§4.7, §4.8): named ports
// carrying typed values, and the send/receive/broadcast operations that
// move those values across Orchestra, dispatching by tag between a
// file-transfer path and a scalar-header path.
//
// Documentation Last Review: 30.07.2026
package swirl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/tomm2000/swirlc"
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/fatal"
	"github.com/tomm2000/swirlc/orchestra"
	"github.com/tomm2000/swirlc/ports"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/xerrors"
)

// Swirl binds an Orchestra to a port registry and a workdir: one instance
// per process, shared by every dataflow operation the choreography issues
// for that location.
type Swirl struct {
	o       *orchestra.Orchestra
	ports   *ports.Registry
	workdir string

	log zerolog.Logger
}

// New builds a Swirl over o with one port per name in portNames, rooted at
// workdir for received files and step working directories.
func New(o *orchestra.Orchestra, portNames []string, workdir string) *Swirl {
	return &Swirl{
		o:       o,
		ports:   ports.NewRegistry(portNames),
		workdir: workdir,
		log:     swirlc.Logger.With().Str("role", "swirl").Int("self", int(o.Self())).Logger(),
	}
}

// Orchestra returns the underlying transport.
func (s *Swirl) Orchestra() *orchestra.Orchestra { return s.o }

// Ports returns the underlying port registry.
func (s *Swirl) Ports() *ports.Registry { return s.ports }

// Init seeds port with value, notifying readiness. Used by the driver to
// seed a choreography's initial inputs.
func (s *Swirl) Init(port string, value wire.PortValue) error {
	return s.ports.Init(port, value)
}

// Send awaits readiness on port, snapshots its value, and transmits it to
// destination, dispatching by tag (§4.8). The operation is spawned as a
// member of js (a fresh one if js is nil), which is returned so callers can
// await multiple dataflow operations together.
//
// port doubles as the message-id the recipient demultiplexes on (§3): a
// choreography names one dataflow edge with one port string, and both the
// sending Swirl's Send and the receiving Swirl's Receive are called with
// that same string, even though each side's port is a locally-registered
// value local to its own process.
func (s *Swirl) Send(ctx context.Context, port string, destination string, js *orchestra.JoinSet) *orchestra.JoinSet {
	if js == nil {
		js = orchestra.NewJoinSet()
	}
	js.Go(func() error {
		return s.sendBlocking(ctx, port, destination)
	})
	return js
}

func (s *Swirl) sendBlocking(ctx context.Context, port string, destination string) error {
	destID, err := s.o.Directory().IDOf(destination)
	if err != nil {
		return err
	}

	if err := s.ports.WaitForData(port); err != nil {
		return err
	}
	value, err := s.ports.Read(port)
	if err != nil {
		return err
	}

	switch value.Kind {
	case wire.KindEmpty:
		return xerrors.Errorf("%w: port %q has no value to send", fatal.ErrEmptyValue, port)
	case wire.KindFile:
		return s.sendFile(ctx, port, destID, value)
	default:
		return s.sendScalar(ctx, port, destID, value)
	}
}

func (s *Swirl) sendFile(ctx context.Context, port string, destID addr.LocationID, value wire.PortValue) error {
	f, err := os.Open(value.Path)
	if err != nil {
		return xerrors.Errorf("failed to open %q for port %q: %v", value.Path, port, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return xerrors.Errorf("failed to stat %q: %v", value.Path, err)
	}

	descriptor := wire.File(filepath.Base(value.Path))
	headerBytes, err := wire.EncodePortValue(descriptor)
	if err != nil {
		return err
	}

	return s.o.SendBlocking(ctx, destID, port, f, headerBytes, info.Size(), s.o.Self())
}

func (s *Swirl) sendScalar(ctx context.Context, port string, destID addr.LocationID, value wire.PortValue) error {
	headerBytes, err := wire.EncodePortValue(value)
	if err != nil {
		return err
	}
	return s.o.SendBlocking(ctx, destID, port, bytes.NewReader(nil), headerBytes, int64(len(headerBytes)), s.o.Self())
}

// Receive clears port, then spawns a task that blocks for an incoming
// message from sender under message-id = port, decodes the header
// descriptor, materializes a File payload or stores a scalar directly, and
// notifies readiness (§4.8).
func (s *Swirl) Receive(ctx context.Context, port string, sender string, js *orchestra.JoinSet) *orchestra.JoinSet {
	if js == nil {
		js = orchestra.NewJoinSet()
	}
	if err := s.ports.Clear(port); err != nil {
		js.Go(func() error { return err })
		return js
	}
	js.Go(func() error {
		return s.receiveBlocking(ctx, port, sender)
	})
	return js
}

func (s *Swirl) receiveBlocking(ctx context.Context, port string, sender string) error {
	senderID, err := s.o.Directory().IDOf(sender)
	if err != nil {
		return err
	}

	pr, err := s.o.ReceiveBlocking(ctx, senderID, port)
	if err != nil {
		return err
	}

	descriptor, err := wire.DecodePortValue(pr.Header().HeaderBytes)
	if err != nil {
		return err
	}

	switch descriptor.Kind {
	case wire.KindEmpty:
		return xerrors.Errorf("%w: port %q received an empty descriptor", fatal.ErrEmptyValue, port)
	case wire.KindFile:
		path, err := s.receiveFile(ctx, pr, descriptor)
		if err != nil {
			return err
		}
		return s.ports.SetAndNotify(port, wire.File(path))
	default:
		if _, err := pr.CollectBytes(ctx); err != nil {
			return err
		}
		return s.ports.SetAndNotify(port, descriptor)
	}
}

func (s *Swirl) receiveFile(ctx context.Context, pr *orchestra.PartialReceive, descriptor wire.PortValue) (string, error) {
	selfName, err := s.o.Directory().NameOf(s.o.Self())
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.workdir, "receive_"+selfName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("%w: failed to create %q: %v", fatal.ErrWorkdir, dir, err)
	}

	dest := filepath.Join(dir, filepath.Base(descriptor.Path))
	if err := pr.CollectFile(ctx, dest); err != nil {
		return "", err
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", xerrors.Errorf("failed to canonicalize %q: %v", dest, err)
	}
	return abs, nil
}

// Broadcast awaits readiness on port, snapshots its value, and fans it out
// to every destination via the machine-aware relay tree, dispatching by
// tag exactly as Send does (§4.8).
func (s *Swirl) Broadcast(ctx context.Context, port string, destinations []string, js *orchestra.JoinSet) *orchestra.JoinSet {
	if js == nil {
		js = orchestra.NewJoinSet()
	}
	js.Go(func() error {
		return s.broadcastBlocking(ctx, port, destinations)
	})
	return js
}

func (s *Swirl) broadcastBlocking(ctx context.Context, port string, destinations []string) error {
	destIDs := make([]addr.LocationID, len(destinations))
	for i, name := range destinations {
		id, err := s.o.Directory().IDOf(name)
		if err != nil {
			return err
		}
		destIDs[i] = id
	}

	if err := s.ports.WaitForData(port); err != nil {
		return err
	}
	value, err := s.ports.Read(port)
	if err != nil {
		return err
	}

	switch value.Kind {
	case wire.KindEmpty:
		return xerrors.Errorf("%w: port %q has no value to broadcast", fatal.ErrEmptyValue, port)
	case wire.KindFile:
		return s.broadcastFile(ctx, port, destIDs, value)
	default:
		return s.broadcastScalar(ctx, port, destIDs, value)
	}
}

func (s *Swirl) broadcastFile(ctx context.Context, port string, destIDs []addr.LocationID, value wire.PortValue) error {
	f, err := os.Open(value.Path)
	if err != nil {
		return xerrors.Errorf("failed to open %q for port %q: %v", value.Path, port, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return xerrors.Errorf("failed to stat %q: %v", value.Path, err)
	}

	descriptor := wire.File(filepath.Base(value.Path))
	headerBytes, err := wire.EncodePortValue(descriptor)
	if err != nil {
		return err
	}

	return s.o.BroadcastBlocking(ctx, destIDs, s.o.Self(), port, f, headerBytes, info.Size(), nil)
}

func (s *Swirl) broadcastScalar(ctx context.Context, port string, destIDs []addr.LocationID, value wire.PortValue) error {
	headerBytes, err := wire.EncodePortValue(value)
	if err != nil {
		return err
	}
	return s.o.BroadcastBlocking(ctx, destIDs, s.o.Self(), port, bytes.NewReader(nil), headerBytes, int64(len(headerBytes)), nil)
}
