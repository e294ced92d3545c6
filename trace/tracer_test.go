package trace

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTracer_BeginEndRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := New(buf)

	tr.Register("executor-1")
	id := tr.Begin("executor-1", "step s1")
	tr.End("executor-1", id)
	tr.Unregister("executor-1")

	out := buf.String()
	require.Contains(t, out, "register executor=executor-1")
	require.Contains(t, out, "begin executor=executor-1")
	require.Contains(t, out, string(id))
	require.Contains(t, out, "end executor=executor-1")
	require.Contains(t, out, "unregister executor=executor-1")
}

func TestTracer_BeginMintsUniqueIDs(t *testing.T) {
	tr := New(&bytes.Buffer{})

	id1 := tr.Begin("e", "label")
	id2 := tr.Begin("e", "label")

	require.NotEqual(t, id1, id2)
}

func TestTracer_ConcurrentWritersSerialized(t *testing.T) {
	buf := &bytes.Buffer{}
	tr := New(buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := tr.Begin("e", "label")
			tr.End("e", id)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 100)
}
