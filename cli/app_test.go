package cli

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	a := ln.Addr().String()
	require.NoError(t, ln.Close())
	return a
}

func TestApp_RequiresLocAndDirectory(t *testing.T) {
	app := App()

	err := app.Run([]string{"swirlc"})
	require.Error(t, err)
}

func TestApp_StartsAndStopsOnSignal(t *testing.T) {
	dir := t.TempDir()
	directoryPath := filepath.Join(dir, "directory.csv")
	require.NoError(t, os.WriteFile(directoryPath, []byte(fmt.Sprintf("A,m1,%s\n", freePort(t))), 0o644))

	app := App()

	done := make(chan error, 1)
	go func() {
		done <- app.Run([]string{
			"swirlc",
			"--loc", "A",
			"--directory", directoryPath,
			"--workdir", filepath.Join(dir, "workdir"),
		})
	}()

	time.Sleep(50 * time.Millisecond)

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(os.Interrupt))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not shut down after interrupt")
	}

	require.DirExists(t, filepath.Join(dir, "workdir"))
}
