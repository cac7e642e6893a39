package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-coshell/logger"
	"github.com/arloliu/go-coshell/reply"
)

func newMockLogger() *logger.MockLogger {
	ml := logger.NewMockLogger()
	for _, level := range []string{"Debug", "Info", "Warn", "Error"} {
		ml.On(level, mock.Anything, mock.Anything).Maybe()
	}

	return ml
}

func TestSession_ReplyBudgetWarning(t *testing.T) {
	require := require.New(t)

	ml := logger.NewMockLogger()
	long := "000 " + strings.Repeat("x", 120)
	ml.On("Warn", "reply exceeds line budget", []any{"length", len(long), "budget", reply.MaxLength}).Once()
	for _, level := range []string{"Debug", "Info", "Warn", "Error"} {
		ml.On(level, mock.Anything, mock.Anything).Maybe()
	}

	cfg, err := NewConfig(WithLogger(ml))
	require.NoError(err)
	gw := New(context.Background(), cfg)
	defer gw.Close()

	replies := &recordReplier{}
	s, err := gw.NewSession(context.Background(), replies)
	require.NoError(err)
	defer s.Close()

	s.send("000 short")
	s.send(long)

	require.Equal([]string{"000 short", long}, replies.Lines())
	ml.AssertCalled(t, "Warn", "reply exceeds line budget", []any{"length", len(long), "budget", reply.MaxLength})
	require.Equal(uint64(2), gw.Metrics().ReplyOKCount.Load())
}

func TestLogReplier(t *testing.T) {
	ml := newMockLogger()
	r := &logReplier{logger: ml}

	require.NoError(t, r.Reply("000 Node 5 started ok"))
	require.NoError(t, r.Reply("404 Unable to start node 5"))

	ml.AssertCalled(t, "Info", "reply", []any{"line", "000 Node 5 started ok"})
	ml.AssertCalled(t, "Warn", "reply", []any{"line", "404 Unable to start node 5"})
	ml.AssertNotCalled(t, "Warn", "reply", []any{"line", "000 Node 5 started ok"})
}

func TestSession_Close(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)

	s, err := env.gw.NewSession(context.Background(), &recordReplier{})
	require.NoError(err)
	require.Equal(IdleState, s.State())
	require.False(s.InFlight())

	s.Close()
	s.Close()

	cmd := mustParse(t, "help")
	require.ErrorIs(env.gw.Dispatch(context.Background(), s, cmd), ErrSessionClosed)
}
