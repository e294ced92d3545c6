package orchestra

import (
	"context"
	"io"

	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/xerrors"
)

// unaryPermits is how many connection-limit permits a unicast send holds
// for the duration of the transfer (§5: "unary senders acquire 2").
const unaryPermits = 2

// SendBlocking opens one connection to dest, writes a MessageHeader with
// relay = End, streams reader as the body, flushes, and closes. It blocks
// until the transfer completes or ctx is canceled.
func (o *Orchestra) SendBlocking(
	ctx context.Context,
	dest addr.LocationID,
	messageID string,
	reader io.Reader,
	headerBytes []byte,
	size int64,
	origin addr.LocationID,
) error {
	if err := o.permits.Acquire(ctx, unaryPermits); err != nil {
		return xerrors.Errorf("failed to acquire connection permits: %v", err)
	}
	defer o.permits.Release(unaryPermits)

	conn, err := o.dialRetry(ctx, dest)
	if err != nil {
		return err
	}
	defer conn.Close()

	header := wire.MessageHeader{
		Sender:      o.self,
		Origin:      origin,
		MessageID:   messageID,
		PayloadSize: size,
		Relay:       wire.EndInstruction(),
		HeaderBytes: headerBytes,
	}

	frame, err := wire.Encode(header, o.frameSize)
	if err != nil {
		return err
	}

	if _, err := conn.Write(frame); err != nil {
		return xerrors.Errorf("failed to write header frame: %v", err)
	}

	n, err := streamCopy(conn, reader)
	if err != nil {
		return xerrors.Errorf("failed to stream body: %v", err)
	}
	bytesStreamed.Add(float64(n))
	o.log.Debug().Str("message-id", messageID).Str("size", humanBytes(n)).Msg("sent")

	return nil
}

// Send is a non-blocking wrapper around SendBlocking; the returned channel
// receives exactly one value once the send completes.
func (o *Orchestra) Send(
	ctx context.Context,
	dest addr.LocationID,
	messageID string,
	reader io.Reader,
	headerBytes []byte,
	size int64,
	origin addr.LocationID,
) <-chan error {
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		errs <- o.SendBlocking(ctx, dest, messageID, reader, headerBytes, size, origin)
	}()

	return errs
}

// SendJoinSet spawns SendBlocking as a member of js.
func (o *Orchestra) SendJoinSet(
	js *JoinSet,
	ctx context.Context,
	dest addr.LocationID,
	messageID string,
	reader io.Reader,
	headerBytes []byte,
	size int64,
	origin addr.LocationID,
) {
	js.Go(func() error {
		return o.SendBlocking(ctx, dest, messageID, reader, headerBytes, size, origin)
	})
}

// streamCopy copies src to dst in ChunkSize-bounded chunks, returning the
// number of bytes copied.
func streamCopy(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	return io.CopyBuffer(dst, src, buf)
}
