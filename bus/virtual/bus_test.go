package virtual

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/logger"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	os.Exit(m.Run())
}

var testIdentity = Identity{DeviceType: 0x00020192, VendorID: 0x0000029c, ProductCode: 0x00000201, Revision: 0x00010003}

func openBus(t *testing.T, master bool, opts ...Option) *Bus {
	t.Helper()

	opts = append([]Option{WithNode(0x05, testIdentity), WithLatency(time.Millisecond), WithPollInterval(time.Millisecond)}, opts...)
	b, err := Open(context.Background(), bus.Config{Channel: "0", Baudrate: "500", NodeID: 1, Master: master}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return b
}

func waitCompletion(t *testing.T, ch <-chan bus.Completion) bus.Completion {
	t.Helper()

	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		require.FailNow(t, "completion not delivered")
		return bus.Completion{}
	}
}

func completionChan() (chan bus.Completion, bus.Callback) {
	ch := make(chan bus.Completion, 4)
	return ch, func(c bus.Completion) { ch <- c }
}

func TestBus_ReadIdentity(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true)
	ch, cb := completionChan()

	tests := []struct {
		index    uint16
		subIndex uint8
		expected uint32
	}{
		{0x1000, 0x00, testIdentity.DeviceType},
		{0x1018, 0x01, testIdentity.VendorID},
		{0x1018, 0x02, testIdentity.ProductCode},
		{0x1018, 0x03, testIdentity.Revision},
	}

	for _, tt := range tests {
		h := bus.NewHandle()
		require.NoError(b.ReadObject(bus.ObjectRequest{Handle: h, NodeID: 0x05, Index: tt.index, SubIndex: tt.subIndex}, cb))

		c := waitCompletion(t, ch)
		require.True(c.OK())
		require.Equal(h, c.Handle)
		require.Equal(uint64(tt.expected), c.Value)
		require.Equal(uint8(4), c.Size)
		require.NoError(b.CloseTransfer(0x05))
	}
}

func TestBus_ChannelBusyUntilClosed(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true)
	ch, cb := completionChan()

	req := bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x1000}
	require.NoError(b.ReadObject(req, cb))
	waitCompletion(t, ch)

	req.Handle = bus.NewHandle()
	require.ErrorIs(b.ReadObject(req, cb), bus.ErrChannelBusy)

	require.NoError(b.CloseTransfer(0x05))
	require.NoError(b.ReadObject(req, cb))
	c := waitCompletion(t, ch)
	require.Equal(req.Handle, c.Handle)
}

func TestBus_Aborts(t *testing.T) {
	b := openBus(t, true,
		WithNode(0x06, testIdentity),
		WithObject(0x05, 0x6200, 0x01, 1, 0, false),
		WithAbort(0x06, 0x1000, 0x00, bus.AbortHardware),
	)
	ch, cb := completionChan()

	tests := []struct {
		name     string
		write    bool
		req      bus.ObjectRequest
		expected bus.AbortCode
	}{
		{"missing object", false, bus.ObjectRequest{NodeID: 0x05, Index: 0x2000}, bus.AbortObjectNotFound},
		{"missing node", false, bus.ObjectRequest{NodeID: 0x20, Index: 0x1000}, bus.AbortTimeout},
		{"read only", true, bus.ObjectRequest{NodeID: 0x05, Index: 0x1018, SubIndex: 0x01, Size: 4, Value: 1}, bus.AbortReadOnly},
		{"too long", true, bus.ObjectRequest{NodeID: 0x05, Index: 0x6200, SubIndex: 0x01, Size: 2, Value: 1}, bus.AbortLengthTooHigh},
		{"injected", false, bus.ObjectRequest{NodeID: 0x06, Index: 0x1000}, bus.AbortHardware},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			tt.req.Handle = bus.NewHandle()
			if tt.write {
				require.NoError(b.WriteObject(tt.req, cb))
			} else {
				require.NoError(b.ReadObject(tt.req, cb))
			}

			c := waitCompletion(t, ch)
			require.False(c.OK())
			require.Equal(tt.expected, c.AbortCode)
			require.NoError(b.CloseTransfer(tt.req.NodeID))
		})
	}
}

func TestBus_WriteThenRead(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true, WithObject(0x05, 0x6200, 0x01, 1, 0, false))
	ch, cb := completionChan()

	require.NoError(b.WriteObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x6200, SubIndex: 0x01, Size: 1, Value: 0xff}, cb))
	require.True(waitCompletion(t, ch).OK())
	require.NoError(b.CloseTransfer(0x05))

	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x6200, SubIndex: 0x01}, cb))
	c := waitCompletion(t, ch)
	require.True(c.OK())
	require.Equal(uint64(0xff), c.Value)
	require.NoError(b.CloseTransfer(0x05))

	// a reset restores power-on values
	require.NoError(b.ChangeNodeState(0x05, bus.NMTResetNode))
	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x6200, SubIndex: 0x01}, cb))
	c = waitCompletion(t, ch)
	require.Equal(uint64(0), c.Value)
}

func TestBus_NMT(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true, WithNode(0x06, testIdentity))

	state, ok := b.NodeState(0x05)
	require.True(ok)
	require.Equal(StatePreOperational, state)

	require.NoError(b.ChangeNodeState(0x05, bus.NMTStart))
	state, _ = b.NodeState(0x05)
	require.Equal(StateOperational, state)
	state, _ = b.NodeState(0x06)
	require.Equal(StatePreOperational, state)

	require.NoError(b.ChangeNodeState(0x00, bus.NMTStop))
	for _, id := range b.NodeIDs() {
		state, _ = b.NodeState(id)
		require.Equal(StateStopped, state, "node %d", id)
	}

	// stopped nodes do not answer SDO requests
	ch, cb := completionChan()
	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x1000}, cb))
	require.Equal(bus.AbortTimeout, waitCompletion(t, ch).AbortCode)

	// unknown nodes are not an error, nmt is unacknowledged
	require.NoError(b.ChangeNodeState(0x30, bus.NMTStart))
	require.ErrorIs(b.ChangeNodeState(0x80, bus.NMTStart), bus.ErrInvalidNode)
	require.Equal([]uint8{0x05, 0x06}, b.NodeIDs())
}

func TestBus_NMTRejected(t *testing.T) {
	require := require.New(t)

	slave := openBus(t, false)
	require.ErrorIs(slave.ChangeNodeState(0x05, bus.NMTStart), bus.ErrNotMaster)

	rejecting := openBus(t, true, WithRejectNMT(true))
	require.ErrorIs(rejecting.ChangeNodeState(0x05, bus.NMTStart), bus.ErrBusy)
}

func TestBus_SilentNodeAndClosedTransfer(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true, WithNode(0x07, testIdentity), WithSilentNode(0x07), WithLatency(20*time.Millisecond))
	ch, cb := completionChan()

	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x07, Index: 0x1000}, cb))

	// released before the latency elapsed: the completion is dropped
	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x1000}, cb))
	require.NoError(b.CloseTransfer(0x05))

	select {
	case c := <-ch:
		require.Failf("unexpected completion", "%+v", c)
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(0, b.Pending())
}

func TestBus_InvalidRequests(t *testing.T) {
	require := require.New(t)
	b := openBus(t, true)
	_, cb := completionChan()

	require.ErrorIs(b.ReadObject(bus.ObjectRequest{NodeID: 0x00, Index: 0x1000}, cb), bus.ErrInvalidNode)
	require.ErrorIs(b.WriteObject(bus.ObjectRequest{NodeID: 0x05, Index: 0x1000, Size: 9}, cb), bus.ErrUnsupported)
	require.Error(b.ReadObject(bus.ObjectRequest{NodeID: 0x05, Index: 0x1000}, nil))

	require.NoError(b.Close())
	require.NoError(b.Close())
	require.ErrorIs(b.ReadObject(bus.ObjectRequest{NodeID: 0x05, Index: 0x1000}, cb), bus.ErrClosed)
	require.ErrorIs(b.ChangeNodeState(0x05, bus.NMTStart), bus.ErrClosed)
}

func TestOptions_Invalid(t *testing.T) {
	require := require.New(t)

	for _, opt := range []Option{
		WithNode(0x00, testIdentity),
		WithNode(0x80, testIdentity),
		WithObject(0x05, 0x2000, 0x00, 0, 0, false),
		WithAbort(0x05, 0x1000, 0x00, 0),
		WithLatency(-time.Second),
		WithPollInterval(0),
	} {
		_, err := Open(context.Background(), bus.Config{}, opt)
		require.Error(err)
	}
}
