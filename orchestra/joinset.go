package orchestra

import "golang.org/x/sync/errgroup"

// JoinSet collects the outcome of a group of concurrently spawned
// operations (the "joinset" variants of §4.3/§4.6). It is a thin wrapper
// over errgroup.Group: every Go'd function is awaited by Wait, and the
// first non-nil error wins.
type JoinSet struct {
	group errgroup.Group
}

// NewJoinSet returns an empty JoinSet.
func NewJoinSet() *JoinSet {
	return &JoinSet{}
}

// Go spawns fn as part of the join set.
func (j *JoinSet) Go(fn func() error) {
	j.group.Go(fn)
}

// Wait blocks until every spawned function has returned, and returns the
// first error encountered, if any.
func (j *JoinSet) Wait() error {
	return j.group.Wait()
}
