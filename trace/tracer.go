// Package trace implements the progress tracer (§4.2): an append-only
// textual event log for executor/task lifecycles. It has no correctness
// role; crashes or omissions here do not affect data flow.
//
// Documentation Last Review: 30.07.2026
package trace

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/tomm2000/swirlc"
)

// TaskID is a freshly minted unique token returned by Begin, passed back to
// End.
type TaskID string

// Tracer is an append-only, wall-clock-tagged event sink. Multiple writers
// are serialized through exclusive access to the underlying writer.
//
// Tracer has no Close method; the underlying writer is closed by its owner.
type Tracer struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// New creates a Tracer that appends records to out. Records are flushed at
// least at End if out has a Sync method (the optional flusher interface);
// otherwise every Write call goes straight through.
func New(out io.Writer) *Tracer {
	return &Tracer{
		out: out,
		log: swirlc.Logger.With().Str("role", "progress tracer").Logger(),
	}
}

type flusher interface {
	Sync() error
}

// Register records that an executor has come online.
func (t *Tracer) Register(executor string) {
	t.write("register", executor, "")
}

// Unregister records that an executor has gone offline.
func (t *Tracer) Unregister(executor string) {
	t.write("unregister", executor, "")
}

// Begin records the start of a labeled task for executor and returns a
// freshly minted task-id to pass to End.
func (t *Tracer) Begin(executor, label string) TaskID {
	id := TaskID(xid.New().String())
	t.write("begin", executor, fmt.Sprintf("task=%s label=%s", id, label))
	return id
}

// End records the completion of the task identified by id and flushes the
// sink.
func (t *Tracer) End(executor string, id TaskID) {
	t.write("end", executor, fmt.Sprintf("task=%s", id))
	t.flush()
}

func (t *Tracer) write(event, executor, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := fmt.Sprintf("%s %s executor=%s %s\n",
		time.Now().Format(time.RFC3339Nano), event, executor, detail)

	if _, err := io.WriteString(t.out, line); err != nil {
		t.log.Warn().Err(err).Msg("failed to append progress trace record")
	}
}

func (t *Tracer) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if f, ok := t.out.(flusher); ok {
		if err := f.Sync(); err != nil {
			t.log.Warn().Err(err).Msg("failed to flush progress trace")
		}
	}
}
