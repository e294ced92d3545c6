package swirl

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tomm2000/swirlc/addr"
	"github.com/tomm2000/swirlc/orchestra"
	"github.com/tomm2000/swirlc/wire"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := ln.Addr().String()
	require.NoError(t, ln.Close())
	return a
}

func buildDirectory(t *testing.T, names ...string) *addr.Directory {
	t.Helper()

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%s,m1,%s\n", name, freePort(t))
	}

	dir, err := addr.Parse(strings.NewReader(sb.String()), names[0])
	require.NoError(t, err)
	return dir
}

func newSwirl(t *testing.T, base *addr.Directory, self string, ports []string) (*Swirl, context.CancelFunc) {
	t.Helper()

	dir, err := base.WithSelf(self)
	require.NoError(t, err)

	o := orchestra.New(dir)
	ctx, cancel := context.WithCancel(context.Background())

	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = o.AcceptLoop(ctx)
	}()
	<-ready
	time.Sleep(20 * time.Millisecond)

	workdir := t.TempDir()
	return New(o, ports, workdir), cancel
}

// Send and receive are matched by message-id = port name (§4.8): a
// choreography's edge is one shared port name, read by the sender's Swirl
// on one end and written by the receiver's Swirl on the other. Tests below
// use the same port name on both sides accordingly, not independently
// named local ports.

func TestSendReceive_Scalar(t *testing.T) {
	base := buildDirectory(t, "A", "B")

	a, cancelA := newSwirl(t, base, "A", []string{"x"})
	defer cancelA()
	b, cancelB := newSwirl(t, base, "B", []string{"x"})
	defer cancelB()

	require.NoError(t, a.Init("x", wire.Int(42)))

	ctx := context.Background()
	sendJS := a.Send(ctx, "x", "B", nil)
	recvJS := b.Receive(ctx, "x", "A", nil)

	require.NoError(t, sendJS.Wait())
	require.NoError(t, recvJS.Wait())

	got, err := b.Ports().Read("x")
	require.NoError(t, err)
	require.Equal(t, wire.Int(42), got)
}

func TestSendReceive_File(t *testing.T) {
	base := buildDirectory(t, "A", "B")

	a, cancelA := newSwirl(t, base, "A", []string{"x"})
	defer cancelA()
	b, cancelB := newSwirl(t, base, "B", []string{"x"})
	defer cancelB()

	srcPath := filepath.Join(t.TempDir(), "payload.bin")
	payload := make([]byte, 2*1024*1024+9)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(srcPath, payload, 0o644))

	require.NoError(t, a.Init("x", wire.File(srcPath)))

	ctx := context.Background()
	sendJS := a.Send(ctx, "x", "B", nil)
	recvJS := b.Receive(ctx, "x", "A", nil)

	require.NoError(t, sendJS.Wait())
	require.NoError(t, recvJS.Wait())

	got, err := b.Ports().Read("x")
	require.NoError(t, err)
	require.Equal(t, wire.KindFile, got.Kind)

	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestBroadcast_Scalar(t *testing.T) {
	base := buildDirectory(t, "A", "B", "C")

	a, cancelA := newSwirl(t, base, "A", []string{"x"})
	defer cancelA()
	b, cancelB := newSwirl(t, base, "B", []string{"x"})
	defer cancelB()
	c, cancelC := newSwirl(t, base, "C", []string{"x"})
	defer cancelC()

	require.NoError(t, a.Init("x", wire.Text("fanout")))

	ctx := context.Background()
	bcastJS := a.Broadcast(ctx, "x", []string{"B", "C"}, nil)
	recvB := b.Receive(ctx, "x", "A", nil)
	recvC := c.Receive(ctx, "x", "A", nil)

	require.NoError(t, bcastJS.Wait())
	require.NoError(t, recvB.Wait())
	require.NoError(t, recvC.Wait())

	gotB, err := b.Ports().Read("x")
	require.NoError(t, err)
	require.Equal(t, wire.Text("fanout"), gotB)

	gotC, err := c.Ports().Read("x")
	require.NoError(t, err)
	require.Equal(t, wire.Text("fanout"), gotC)
}

// TestEndToEnd_ExecThenSendThenReceive is seed scenario 1: A execs a step
// that writes a file, sends it to B, and B receives it into its own
// receive directory.
func TestEndToEnd_ExecThenSendThenReceive(t *testing.T) {
	base := buildDirectory(t, "A", "B")

	a, cancelA := newSwirl(t, base, "A", []string{"p1"})
	defer cancelA()
	b, cancelB := newSwirl(t, base, "B", []string{"p1"})
	defer cancelB()

	step := Step{
		Name:    "s1",
		Display: "s1",
		Output:  &Output{Port: "p1", Kind: OutputFile, Glob: "message.txt"},
		Command: "sh",
		Args:    []Arg{Literal("-c"), Literal("echo hi > message.txt")},
	}
	require.NoError(t, a.Exec(context.Background(), step))

	ctx := context.Background()
	sendJS := a.Send(ctx, "p1", "B", nil)
	recvJS := b.Receive(ctx, "p1", "A", nil)

	require.NoError(t, sendJS.Wait())
	require.NoError(t, recvJS.Wait())

	got, err := b.Ports().Read("p1")
	require.NoError(t, err)
	require.Equal(t, wire.KindFile, got.Kind)
	require.Equal(t, "message.txt", filepath.Base(got.Path))

	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	require.Equal(t, "hi\n", string(data))
}

// TestConcurrentSends_DistinctPortsDoNotInterfere is seed scenario 6.
func TestConcurrentSends_DistinctPortsDoNotInterfere(t *testing.T) {
	base := buildDirectory(t, "A", "B")

	a, cancelA := newSwirl(t, base, "A", []string{"p1", "p2"})
	defer cancelA()
	b, cancelB := newSwirl(t, base, "B", []string{"p1", "p2"})
	defer cancelB()

	require.NoError(t, a.Init("p1", wire.Text("first")))
	require.NoError(t, a.Init("p2", wire.Text("second")))

	ctx := context.Background()
	js := a.Send(ctx, "p1", "B", nil)
	js = a.Send(ctx, "p2", "B", js)

	recvJS := b.Receive(ctx, "p1", "A", nil)
	recvJS = b.Receive(ctx, "p2", "A", recvJS)

	require.NoError(t, js.Wait())
	require.NoError(t, recvJS.Wait())

	got1, err := b.Ports().Read("p1")
	require.NoError(t, err)
	require.Equal(t, wire.Text("first"), got1)

	got2, err := b.Ports().Read("p2")
	require.NoError(t, err)
	require.Equal(t, wire.Text("second"), got2)
}

func TestExec_FileOutputGlob(t *testing.T) {
	base := buildDirectory(t, "A")
	a, cancel := newSwirl(t, base, "A", []string{"result"})
	defer cancel()

	step := Step{
		Name:    "write-file",
		Display: "write-file",
		Command: "sh",
		Args: []Arg{
			Literal("-c"),
			Literal("echo hello > out.txt"),
		},
		Output: &Output{Port: "result", Kind: OutputFile, Glob: "*.txt"},
	}

	require.NoError(t, a.Exec(context.Background(), step))

	got, err := a.Ports().Read("result")
	require.NoError(t, err)
	require.Equal(t, wire.KindFile, got.Kind)

	data, err := os.ReadFile(got.Path)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}

func TestExec_StdoutOutput(t *testing.T) {
	base := buildDirectory(t, "A")
	a, cancel := newSwirl(t, base, "A", []string{"result"})
	defer cancel()

	step := Step{
		Name:    "print",
		Display: "print",
		Command: "printf",
		Args:    []Arg{Literal("hello")},
		Output:  &Output{Port: "result", Kind: OutputStdout},
	}

	require.NoError(t, a.Exec(context.Background(), step))

	got, err := a.Ports().Read("result")
	require.NoError(t, err)
	require.Equal(t, wire.Text("hello"), got)
}

func TestExec_NonZeroExitIsFatal(t *testing.T) {
	base := buildDirectory(t, "A")
	a, cancel := newSwirl(t, base, "A", nil)
	defer cancel()

	step := Step{
		Name:    "fail",
		Display: "fail",
		Command: "sh",
		Args:    []Arg{Literal("-c"), Literal("exit 3")},
	}

	err := a.Exec(context.Background(), step)
	require.Error(t, err)
}

func TestExec_SymlinkedFileInput(t *testing.T) {
	base := buildDirectory(t, "A")
	a, cancel := newSwirl(t, base, "A", []string{"src", "out"})
	defer cancel()

	srcPath := filepath.Join(t.TempDir(), "input.txt")
	require.NoError(t, os.WriteFile(srcPath, []byte("from-port\n"), 0o644))
	require.NoError(t, a.Init("src", wire.File(srcPath)))

	step := Step{
		Name:    "cat",
		Display: "cat",
		Inputs:  []string{"src"},
		Command: "cat",
		Args:    []Arg{PortArg("src")},
		Output:  &Output{Port: "out", Kind: OutputStdout},
	}

	require.NoError(t, a.Exec(context.Background(), step))

	got, err := a.Ports().Read("out")
	require.NoError(t, err)
	require.Equal(t, wire.Text("from-port\n"), got)
}
