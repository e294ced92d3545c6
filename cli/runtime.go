// Package cli wires the Orchestra transport and Swirl dataflow layer
// together behind a small start/stop lifecycle and a urfave/cli surface
// (§6's "CLI surface" collaborator boundary). A compiled choreography
// driver embeds Runtime and issues its own Swirl operations once Start
// has returned; this package supplies none of that choreography logic
// itself.
//
// Documentation Last Review: 30.07.2026
package cli

import (
	"context"

	"github.com/tomm2000/swirlc"
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/orchestra"
	"github.com/tomm2000/swirlc/swirl"
)

// Runtime binds one process's Orchestra and Swirl together with a
// start/stop lifecycle, the way the teacher's controller binds a Mino
// instance to OnStart/OnStop.
type Runtime struct {
	Orchestra *orchestra.Orchestra
	Swirl     *swirl.Swirl

	dir    *addr.Directory
	cancel context.CancelFunc
	done   chan error
}

// NewRuntime builds a Runtime for dir's self location, with one Swirl
// port per name in portNames and workdir as the root for received files
// and step working directories.
func NewRuntime(dir *addr.Directory, portNames []string, workdir string) *Runtime {
	o := orchestra.New(dir)

	return &Runtime{
		Orchestra: o,
		Swirl:     swirl.New(o, portNames, workdir),
		dir:       dir,
	}
}

// Start begins accepting connections in the background. It returns once
// the accept loop has been launched; call Stop to shut it down.
func (r *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan error, 1)

	info, _ := r.dir.InfoOf(r.dir.SelfID())
	swirlc.Logger.Info().
		Str("loc", info.Name).
		Str("address", info.Address).
		Msg("starting swirlc runtime")

	go func() {
		r.done <- r.Orchestra.AcceptLoop(ctx)
	}()
}

// Stop cancels the accept loop, waits for it to return, and releases the
// listener. It is safe to call even if Start was never called.
func (r *Runtime) Stop() error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()

	err := <-r.done
	closeErr := r.Orchestra.Close()

	if err != nil {
		return err
	}
	return closeErr
}
