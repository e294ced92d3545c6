package orchestra

import (
	"context"
	"io"
	"net"

	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/fatal"
	"github.com/tomm2000/swirlc/relay"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

// BroadcastBlocking fans reader out to every location in dests, biased by
// machine co-location (§4.4, §4.5). origin is the node that first
// introduced the message; it is preserved unchanged when this call is
// itself relaying on behalf of a receive (see receive.go). localSink, if
// non-nil, is fed the same bytes as every peer — the tee used when this
// broadcast is a relay hop with a local consumer.
func (o *Orchestra) BroadcastBlocking(
	ctx context.Context,
	dests []addr.LocationID,
	origin addr.LocationID,
	messageID string,
	reader io.Reader,
	headerBytes []byte,
	size int64,
	localSink io.Writer,
) error {
	tree, err := relay.BuildTree(o.self, dests, o.dir)
	if err != nil {
		return err
	}

	if tree.IsEnd() {
		return xerrors.Errorf("%w", fatal.ErrNoDestinations)
	}

	return o.relayTree(ctx, tree, origin, messageID, reader, headerBytes, size, localSink)
}

// relayTree executes an already-built relay tree: it opens a connection to
// every first-hop option, writes a header carrying that option's
// sub-instruction, then tees the body to every branch and, if non-nil,
// localSink. It is shared by BroadcastBlocking (which builds the tree
// fresh) and a receive acting as an intermediate relay (which reuses the
// sub-tree embedded in the header it received, see receive.go).
func (o *Orchestra) relayTree(
	ctx context.Context,
	tree wire.RelayInstruction,
	origin addr.LocationID,
	messageID string,
	reader io.Reader,
	headerBytes []byte,
	size int64,
	localSink io.Writer,
) error {
	relayFanout.Observe(float64(len(tree.Options)))

	permits := int64(1 + len(tree.Options))
	if err := o.permits.Acquire(ctx, permits); err != nil {
		return xerrors.Errorf("failed to acquire connection permits: %v", err)
	}
	defer o.permits.Release(permits)

	conns := make([]net.Conn, len(tree.Options))

	defer func() {
		for _, c := range conns {
			if c != nil {
				c.Close()
			}
		}
	}()

	for i, opt := range tree.Options {
		conn, err := o.dialRetry(ctx, opt.Destination)
		if err != nil {
			return err
		}
		conns[i] = conn

		header := wire.MessageHeader{
			Sender:      o.self,
			Origin:      origin,
			MessageID:   messageID,
			PayloadSize: size,
			Relay:       opt.Sub,
			HeaderBytes: headerBytes,
		}

		frame, err := wire.Encode(header, o.frameSize)
		if err != nil {
			return err
		}

		if _, err := conn.Write(frame); err != nil {
			return xerrors.Errorf("failed to write header frame to branch %d: %v", i, err)
		}
	}

	n, err := teeChunks(ctx, reader, conns, localSink)
	bytesStreamed.Add(float64(n))
	o.log.Debug().Str("message-id", messageID).Str("size", humanBytes(n)).
		Str("tree", relay.Display(tree, o.dir)).Msg("relayed")
	return err
}

// teeChunks reads src in ChunkSize-bounded chunks; for each chunk, it
// writes the chunk to every peer connection (and, if non-nil, localSink)
// concurrently, waiting for all writes to finish before reading the next
// chunk. This bounds memory to one chunk regardless of fan-out (§4.5, §9).
func teeChunks(ctx context.Context, src io.Reader, conns []net.Conn, localSink io.Writer) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			g, _ := errgroup.WithContext(ctx)
			for _, c := range conns {
				c := c
				g.Go(func() error {
					_, err := c.Write(chunk)
					return err
				})
			}
			if localSink != nil {
				g.Go(func() error {
					_, err := localSink.Write(chunk)
					return err
				})
			}

			if err := g.Wait(); err != nil {
				return total, err
			}

			total += int64(n)
		}

		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
