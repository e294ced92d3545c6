package orchestra

import (
	"context"
	"net"
	"time"

	"github.com/tomm2000/swirlc/addr"
	"golang.org/x/xerrors"
)

// dialRetry opens a TCP connection to dest, retrying at DialRetryInterval
// until it succeeds or ctx is canceled. There is no overall timeout by
// design (§4.3, §9): the choreography layer above assumes "eventually
// succeeds".
func (o *Orchestra) dialRetry(ctx context.Context, dest addr.LocationID) (net.Conn, error) {
	info, err := o.dir.InfoOf(dest)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer

	for {
		conn, err := dialer.DialContext(ctx, "tcp", info.Address)
		if err == nil {
			connectionsOpened.Inc()
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, xerrors.Errorf("dial to %s canceled: %v", info.Address, ctx.Err())
		case <-time.After(DialRetryInterval):
		}
	}
}
