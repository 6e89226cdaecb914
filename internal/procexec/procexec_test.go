//go:build linux

package procexec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/encode-manager/internal/encodemgr"
	"github.com/edirooss/encode-manager/internal/procexec"
)

func TestSpawner_ExitCode(t *testing.T) {
	s := procexec.New(zap.NewNop())
	p, err := s.Create(context.Background(), encodemgr.ProcessSpec{Cmd: "exit 3"})
	require.NoError(t, err)

	select {
	case res := <-p.Done():
		require.Equal(t, 3, res.Code)
		require.Empty(t, res.Signal)
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit in time")
	}
}

func TestSpawner_Success(t *testing.T) {
	s := procexec.New(zap.NewNop())
	p, err := s.Create(context.Background(), encodemgr.ProcessSpec{Cmd: "true"})
	require.NoError(t, err)

	select {
	case res := <-p.Done():
		require.Equal(t, 0, res.Code)
		require.Empty(t, res.Signal)
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit in time")
	}
}

func TestUtil_Kill_Sigterm(t *testing.T) {
	s := procexec.New(zap.NewNop())
	p, err := s.Create(context.Background(), encodemgr.ProcessSpec{Cmd: "sleep 30"})
	require.NoError(t, err)

	util := procexec.NewUtil()
	require.NoError(t, util.Kill(p))

	select {
	case res := <-p.Done():
		require.NotEmpty(t, res.Signal, "a SIGTERM'd sleep should report the signal it died from")
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}

func TestUtil_Kill_IsIdempotent(t *testing.T) {
	s := procexec.New(zap.NewNop())
	p, err := s.Create(context.Background(), encodemgr.ProcessSpec{Cmd: "sleep 30"})
	require.NoError(t, err)

	util := procexec.NewUtil()
	require.NoError(t, util.Kill(p))
	require.NoError(t, util.Kill(p), "a second Kill on an already-dying process must not error")

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}
