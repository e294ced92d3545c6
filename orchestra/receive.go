package orchestra

import (
	"bytes"
	"context"
	"io"
	"os"
	"time"

	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/xerrors"
)

// ReceiveBlocking polls the incoming registry at PollInterval until an
// entry matching (origin, message-id) appears, removes it, and returns a
// handle over the header and the still-open body stream. The parameter is
// named origin, matching §3's demultiplexing identity, rather than the
// distilled spec's "sender" — the two coincide for an unrelayed message,
// but origin is what the registry actually keys on.
func (o *Orchestra) ReceiveBlocking(ctx context.Context, origin addr.LocationID, messageID string) (*PartialReceive, error) {
	key := incomingKey{origin: origin, messageID: messageID}

	for {
		o.mu.Lock()
		entry, found := o.incoming[key]
		if found {
			delete(o.incoming, key)
		}
		o.mu.Unlock()

		if found {
			return &PartialReceive{header: entry.header, conn: entry.conn, o: o, messageID: messageID}, nil
		}

		select {
		case <-ctx.Done():
			return nil, xerrors.Errorf("receive canceled waiting for (%d, %s): %v", origin, messageID, ctx.Err())
		case <-time.After(PollInterval):
		}
	}
}

// PartialReceive is a still-open message: the header has been read, the
// body stream has not. It offers multiple consumption modes, each of which
// preserves the relay/tee contract: if the header carries a non-End relay
// sub-tree, every byte read also gets forwarded per that sub-tree.
type PartialReceive struct {
	header    wire.MessageHeader
	conn      conn
	o         *Orchestra
	messageID string
}

// conn is the minimal surface PartialReceive needs from the body stream;
// satisfied by net.Conn.
type conn interface {
	io.ReadCloser
}

// Header returns the decoded MessageHeader for this message.
func (p *PartialReceive) Header() wire.MessageHeader {
	return p.header
}

// CollectInto copies the body to w; if the header carries a relay
// sub-tree, it simultaneously broadcasts the body per that sub-tree,
// acting as an intermediate relay. Every byte of the source stream reaches
// both w and every peer.
func (p *PartialReceive) CollectInto(ctx context.Context, w io.Writer) error {
	defer p.conn.Close()

	if p.header.Relay.IsEnd() {
		n, err := streamCopy(w, p.conn)
		if err != nil {
			return xerrors.Errorf("failed to collect body: %v", err)
		}
		bytesStreamed.Add(float64(n))
		return nil
	}

	return p.o.relayTree(
		ctx,
		p.header.Relay,
		p.header.Origin,
		p.messageID,
		p.conn,
		p.header.HeaderBytes,
		p.header.PayloadSize,
		w,
	)
}

// CollectBytes materializes the body into a byte buffer.
func (p *PartialReceive) CollectBytes(ctx context.Context) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := p.CollectInto(ctx, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CollectString materializes the body and decodes it as text.
func (p *PartialReceive) CollectString(ctx context.Context) (string, error) {
	data, err := p.CollectBytes(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CollectFile creates (or overwrites) path and streams the body into it.
func (p *PartialReceive) CollectFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Errorf("failed to create destination file: %v", err)
	}
	defer f.Close()

	return p.CollectInto(ctx, f)
}

// CollectIntoJoinSet spawns CollectInto as a member of js.
func (p *PartialReceive) CollectIntoJoinSet(js *JoinSet, ctx context.Context, w io.Writer) {
	js.Go(func() error {
		return p.CollectInto(ctx, w)
	})
}
