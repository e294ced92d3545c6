package relay

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomm2000/swirlc/addr"
)

func mustDir(t *testing.T, csv string, self string) *addr.Directory {
	t.Helper()
	dir, err := addr.Parse(strings.NewReader(csv), self)
	require.NoError(t, err)
	return dir
}

func ids(t *testing.T, dir *addr.Directory, names ...string) []addr.LocationID {
	t.Helper()
	out := make([]addr.LocationID, len(names))
	for i, n := range names {
		id, err := dir.IDOf(n)
		require.NoError(t, err)
		out[i] = id
	}
	return out
}

func TestBuildTree_Singleton(t *testing.T) {
	dir := mustDir(t, "a,m1,addrA\nb,m2,addrB\n", "a")

	a := ids(t, dir, "a")[0]
	b := ids(t, dir, "b")[0]

	tree, err := BuildTree(a, []addr.LocationID{b}, dir)
	require.NoError(t, err)
	require.False(t, tree.IsEnd())
	require.Len(t, tree.Options, 1)
	require.Equal(t, b, tree.Options[0].Destination)
	require.True(t, tree.Options[0].Sub.IsEnd())
}

func TestBuildTree_EmptyDestinationsIsEnd(t *testing.T) {
	dir := mustDir(t, "a,m1,addrA\n", "a")
	a := ids(t, dir, "a")[0]

	tree, err := BuildTree(a, nil, dir)
	require.NoError(t, err)
	require.True(t, tree.IsEnd())
}

func TestBuildTree_SameMachineIsStarFromSender(t *testing.T) {
	dir := mustDir(t, "a,m1,addrA\nb,m1,addrB\nc,m1,addrC\nd,m1,addrD\n", "a")
	a, b, c, d := ids(t, dir, "a")[0], ids(t, dir, "b")[0], ids(t, dir, "c")[0], ids(t, dir, "d")[0]

	tree, err := BuildTree(a, []addr.LocationID{b, c, d}, dir)
	require.NoError(t, err)
	require.Len(t, tree.Options, 3)

	for _, opt := range tree.Options {
		require.Equal(t, a, opt.Sender)
		require.True(t, opt.Sub.IsEnd())
	}
}

func TestBuildTree_CoversEveryDestinationExactlyOnce(t *testing.T) {
	dir := mustDir(t, strings.Join([]string{
		"a,m1,addrA",
		"b,m1,addrB",
		"c,m2,addrC",
		"d,m2,addrD",
		"e,m2,addrE",
	}, "\n"), "a")

	a := ids(t, dir, "a")[0]
	dests := ids(t, dir, "b", "c", "d", "e")

	tree, err := BuildTree(a, dests, dir)
	require.NoError(t, err)

	got := Destinations(tree)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })

	want := append([]addr.LocationID{}, dests...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	require.Equal(t, want, got)
}

func TestBuildTree_InterMachineLinkIsSingleHop(t *testing.T) {
	// A, B on m1; C, D, E on m2. Broadcast from A to B, C, D, E must cross
	// to m2 exactly once: C (the master of m2, smallest id) is reached
	// directly from A, and D, E are reached as C's slaves, never directly
	// from A.
	dir := mustDir(t, strings.Join([]string{
		"a,m1,addrA",
		"b,m1,addrB",
		"c,m2,addrC",
		"d,m2,addrD",
		"e,m2,addrE",
	}, "\n"), "a")

	a := ids(t, dir, "a")[0]
	b, c, d, e := ids(t, dir, "b")[0], ids(t, dir, "c")[0], ids(t, dir, "d")[0], ids(t, dir, "e")[0]

	tree, err := BuildTree(a, []addr.LocationID{b, c, d, e}, dir)
	require.NoError(t, err)

	var crossMachineHops int
	var foundC bool

	for _, opt := range tree.Options {
		if opt.Destination == c {
			foundC = true
			crossMachineHops++

			sawD, sawE := false, false
			for _, sub := range opt.Sub.Options {
				if sub.Destination == d {
					sawD = true
					require.Equal(t, c, sub.Sender)
				}
				if sub.Destination == e {
					sawE = true
					require.Equal(t, c, sub.Sender)
				}
			}
			require.True(t, sawD)
			require.True(t, sawE)
		}

		require.NotEqual(t, d, opt.Destination, "d must not be reached directly from the root")
		require.NotEqual(t, e, opt.Destination, "e must not be reached directly from the root")
	}

	require.True(t, foundC)
	require.Equal(t, 1, crossMachineHops)
}
