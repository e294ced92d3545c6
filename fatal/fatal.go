// Package fatal centralizes the fatal-condition taxonomy of the runtime.
//
// Every condition listed here indicates a programming error in the compiled
// choreography or a deployment misconfiguration from which no local
// recovery is meaningful. The runtime packages return these conditions as
// wrapped errors and do not abort the process themselves; Abort is what logs
// a condition with the "[HH:MM:SS] [location] >>> ..." prelude and exits,
// and no package in this module calls it.
package fatal

import (
	"github.com/tomm2000/swirlc"
	"golang.org/x/xerrors"
)

// Sentinel errors for each fatal condition. Wrap with xerrors.Errorf and
// errors.Is/errors.As to test which condition fired.
var (
	ErrUnknownLocation = xerrors.New("unknown location")
	ErrUnknownPort     = xerrors.New("unknown port")
	ErrEmptyValue      = xerrors.New("attempted to send an empty port value")
	ErrOversizedHeader = xerrors.New("serialized header exceeds the fixed frame")
	ErrHeaderDecode    = xerrors.New("malformed incoming header")
	ErrStepExit        = xerrors.New("step exited with a non-zero status")
	ErrGlobMiss        = xerrors.New("output glob matched zero or multiple files")
	ErrWorkdir         = xerrors.New("failed to materialize the step workdir")
	ErrPortUnderflow   = xerrors.New("wait_for_data returned but the port is still empty")
	ErrNoDestinations  = xerrors.New("broadcast has no destinations")
)

// Abort logs the fatal condition with the location prelude and terminates
// the process with a non-zero exit code. It never returns.
func Abort(location string, err error) {
	swirlc.Abort(location, err)
}
