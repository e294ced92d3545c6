package swirl

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/tomm2000/swirlc/fatal"
	"github.com/tomm2000/swirlc/orchestra"
	"github.com/tomm2000/swirlc/wire"
	"golang.org/x/xerrors"
)

// ArgKind tags a Step argument as literal text or a reference to a port
// whose value is resolved once the step is ready to run.
type ArgKind uint8

const (
	ArgLiteral ArgKind = iota
	ArgPort
)

// Arg is one argv entry of a Step.
type Arg struct {
	Kind  ArgKind
	Value string // literal text, or a port name when Kind == ArgPort
}

// Literal returns a verbatim argv entry.
func Literal(s string) Arg { return Arg{Kind: ArgLiteral, Value: s} }

// PortArg returns an argv entry resolved from port's value at invocation
// time (§4.9 step 3).
func PortArg(port string) Arg { return Arg{Kind: ArgPort, Value: port} }

// OutputKind tags how a Step's result is published to its output port.
type OutputKind uint8

const (
	OutputNone OutputKind = iota
	OutputStdout
	OutputFile
)

// Output describes a Step's single output port, if any.
type Output struct {
	Port string
	Kind OutputKind
	Glob string // only meaningful when Kind == OutputFile
}

// Step describes one local subprocess invocation (§4.9).
type Step struct {
	Name    string
	Display string
	Inputs  []string // port names materialized into the step workdir if File-tagged
	Output  *Output
	Command string
	Args    []Arg
}

// Exec runs step: creates and canonicalizes its workdir, materializes
// File-tagged inputs into it, assembles argv, invokes the subprocess with
// that workdir as cwd, and publishes the result to the output port if one
// is named.
func (s *Swirl) Exec(ctx context.Context, step Step) error {
	workdir, err := s.stepWorkdir(step.Name)
	if err != nil {
		return err
	}

	if err := s.materializeInputs(step.Inputs, workdir); err != nil {
		return err
	}

	argv, err := s.buildArgv(step.Args)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, step.Command, argv...)
	cmd.Dir = workdir

	var stdout bytes.Buffer
	if step.Output != nil && step.Output.Kind == OutputStdout {
		cmd.Stdout = &stdout
	}
	if err := cmd.Run(); err != nil {
		return execErr(step, err)
	}

	s.log.Debug().Str("step", step.Display).Str("workdir", workdir).Msg("step exited 0")

	return s.publishOutput(step.Output, workdir, stdout.Bytes())
}

// ExecJoinSet spawns Exec as a member of js (a fresh one if js is nil) and
// returns it.
func (s *Swirl) ExecJoinSet(ctx context.Context, step Step, js *orchestra.JoinSet) *orchestra.JoinSet {
	if js == nil {
		js = orchestra.NewJoinSet()
	}
	js.Go(func() error {
		return s.Exec(ctx, step)
	})
	return js
}

func execErr(step Step, err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return xerrors.Errorf("%w: step %q (%s) exited %d", fatal.ErrStepExit, step.Display, step.Command, exitErr.ExitCode())
	}
	return xerrors.Errorf("failed to run step %q: %v", step.Display, err)
}

// stepWorkdir creates and canonicalizes workdir/step_<name>. A name already
// in use (a step re-invoked within the same run) gets a short uuid suffix
// rather than colliding with the prior invocation's materialized inputs.
func (s *Swirl) stepWorkdir(name string) (string, error) {
	dir := filepath.Join(s.workdir, "step_"+name)
	if _, err := os.Stat(dir); err == nil {
		dir = dir + "-" + uuid.NewString()[:8]
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("%w: failed to create %q: %v", fatal.ErrWorkdir, dir, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", xerrors.Errorf("%w: failed to canonicalize %q: %v", fatal.ErrWorkdir, dir, err)
	}
	return abs, nil
}

// materializeInputs awaits readiness on each input port; File-tagged values
// are linked (or copied) into workdir under their basename. Non-file inputs
// are left alone — they are resolved directly when building argv.
func (s *Swirl) materializeInputs(inputs []string, workdir string) error {
	for _, port := range inputs {
		if err := s.ports.WaitForData(port); err != nil {
			return err
		}
		value, err := s.ports.Read(port)
		if err != nil {
			return err
		}
		if value.Kind != wire.KindFile {
			continue
		}

		dest := filepath.Join(workdir, filepath.Base(value.Path))
		if err := symlinkOrCopy(value.Path, dest); err != nil {
			return err
		}
	}
	return nil
}

func symlinkOrCopy(src, dest string) error {
	if err := os.Symlink(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return xerrors.Errorf("%w: failed to open %q: %v", fatal.ErrWorkdir, src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return xerrors.Errorf("%w: failed to create %q: %v", fatal.ErrWorkdir, dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return xerrors.Errorf("%w: failed to copy %q to %q: %v", fatal.ErrWorkdir, src, dest, err)
	}
	return nil
}

// buildArgv resolves args into a concrete argv, per §4.9 step 3.
func (s *Swirl) buildArgv(args []Arg) ([]string, error) {
	argv := make([]string, 0, len(args))

	for _, a := range args {
		switch a.Kind {
		case ArgLiteral:
			argv = append(argv, a.Value)
		case ArgPort:
			if err := s.ports.WaitForData(a.Value); err != nil {
				return nil, err
			}
			value, err := s.ports.Read(a.Value)
			if err != nil {
				return nil, err
			}
			text, err := canonicalArg(value)
			if err != nil {
				return nil, err
			}
			argv = append(argv, text)
		}
	}

	return argv, nil
}

func canonicalArg(v wire.PortValue) (string, error) {
	switch v.Kind {
	case wire.KindFile:
		return filepath.Base(v.Path), nil
	case wire.KindText:
		return v.Text, nil
	case wire.KindInt:
		return strconv.Itoa(int(v.Int)), nil
	case wire.KindBool:
		return strconv.FormatBool(v.Bool), nil
	default:
		return "", xerrors.Errorf("%w: empty port value used as a step argument", fatal.ErrEmptyValue)
	}
}

// publishOutput stores a step's result into its output port, if any (§4.9
// step 6).
func (s *Swirl) publishOutput(output *Output, workdir string, stdout []byte) error {
	if output == nil {
		return nil
	}

	switch output.Kind {
	case OutputNone:
		return s.ports.SetAndNotify(output.Port, wire.Empty)

	case OutputStdout:
		return s.ports.SetAndNotify(output.Port, wire.Text(string(stdout)))

	case OutputFile:
		matches, err := filepath.Glob(filepath.Join(workdir, output.Glob))
		if err != nil {
			return xerrors.Errorf("failed to evaluate glob %q: %v", output.Glob, err)
		}
		if len(matches) != 1 {
			return xerrors.Errorf("%w: glob %q matched %d files", fatal.ErrGlobMiss, output.Glob, len(matches))
		}

		abs, err := filepath.Abs(matches[0])
		if err != nil {
			return xerrors.Errorf("failed to canonicalize %q: %v", matches[0], err)
		}
		return s.ports.SetAndNotify(output.Port, wire.File(abs))

	default:
		return xerrors.Errorf("unknown output kind %d for port %q", output.Kind, output.Port)
	}
}
