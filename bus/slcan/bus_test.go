package slcan

import (
	"bufio"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/logger"
)

func TestMain(m *testing.M) {
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	os.Exit(m.Run())
}

// fakeAdapter plays the SLCAN adapter on the far end of a pipe.
type fakeAdapter struct {
	conn  net.Conn
	lines chan string
}

func newFakeAdapter() (*fakeAdapter, net.Conn) {
	busSide, adapterSide := net.Pipe()
	a := &fakeAdapter{conn: adapterSide, lines: make(chan string, 64)}

	go func() {
		defer close(a.lines)
		r := bufio.NewReader(adapterSide)
		for {
			line, err := r.ReadString('\r')
			if err != nil {
				return
			}
			a.lines <- strings.TrimSuffix(line, "\r")
		}
	}()

	return a, busSide
}

func (a *fakeAdapter) next(t *testing.T) string {
	t.Helper()

	select {
	case line, ok := <-a.lines:
		require.True(t, ok, "adapter closed")
		return line
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no command received by adapter")
		return ""
	}
}

func (a *fakeAdapter) respond(t *testing.T, f frame) {
	t.Helper()

	_, err := a.conn.Write(f.encode())
	require.NoError(t, err)
}

func openBus(t *testing.T, master bool, opts ...Option) (*Bus, *fakeAdapter) {
	t.Helper()
	require := require.New(t)

	adapter, port := newFakeAdapter()
	b, err := New(context.Background(), port, bus.Config{Channel: "/dev/ttyACM0", Baudrate: "500", NodeID: 1, Master: master}, opts...)
	require.NoError(err)
	t.Cleanup(func() { _ = b.Close() })

	require.Equal("C", adapter.next(t))
	require.Equal("S6", adapter.next(t))
	require.Equal("O", adapter.next(t))

	return b, adapter
}

func completionChan() (chan bus.Completion, bus.Callback) {
	ch := make(chan bus.Completion, 4)
	return ch, func(c bus.Completion) { ch <- c }
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

func TestBus_NMT(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true)

	require.NoError(b.ChangeNodeState(0x05, bus.NMTStart))
	require.Equal("t00020105", adapter.next(t))

	require.NoError(b.ChangeNodeState(0x00, bus.NMTResetNode))
	require.Equal("t00028100", adapter.next(t))

	require.ErrorIs(b.ChangeNodeState(0x80, bus.NMTStart), bus.ErrInvalidNode)
}

func TestBus_NMTSlave(t *testing.T) {
	b, _ := openBus(t, false)
	require.ErrorIs(t, b.ChangeNodeState(0x05, bus.NMTStart), bus.ErrNotMaster)
}

func TestBus_ReadExpedited(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true)
	ch, cb := completionChan()

	h := bus.NewHandle()
	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: h, NodeID: 0x05, Index: 0x1018, SubIndex: 0x01}, cb))
	require.Equal("t60584018100100000000", adapter.next(t))

	adapter.respond(t, frame{id: 0x585, data: []byte{0x43, 0x18, 0x10, 0x01, 0x9c, 0x02, 0x00, 0x00}})
	c := waitCompletion(t, ch)
	require.True(c.OK())
	require.Equal(h, c.Handle)
	require.Equal(uint64(0x29c), c.Value)
	require.Equal(uint8(4), c.Size)

	require.ErrorIs(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x6200, SubIndex: 0x01}, cb), bus.ErrChannelBusy)
	require.NoError(b.CloseTransfer(0x05))

	// one byte upload, n = 3
	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x6200, SubIndex: 0x01}, cb))
	adapter.next(t)
	adapter.respond(t, frame{id: 0x585, data: []byte{0x4f, 0x00, 0x62, 0x01, 0xff, 0xaa, 0xbb, 0xcc}})
	c = waitCompletion(t, ch)
	require.True(c.OK())
	require.Equal(uint64(0xff), c.Value)
	require.Equal(uint8(1), c.Size)
}

func TestBus_WriteExpedited(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true)
	ch, cb := completionChan()

	require.NoError(b.WriteObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x42, Index: 0x6200, SubIndex: 0x01, Size: 1, Value: 0xff}, cb))
	require.Equal("t64282F006201FF000000", adapter.next(t))

	adapter.respond(t, frame{id: 0x5c2, data: []byte{0x60, 0x00, 0x62, 0x01, 0x00, 0x00, 0x00, 0x00}})
	require.True(waitCompletion(t, ch).OK())

	require.ErrorIs(b.WriteObject(bus.ObjectRequest{NodeID: 0x42, Index: 0x6200, Size: 8}, cb), bus.ErrUnsupported)
}

func TestBus_Abort(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true)
	ch, cb := completionChan()

	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x2000}, cb))
	adapter.next(t)

	// response for another object is ignored
	adapter.respond(t, frame{id: 0x585, data: []byte{0x80, 0x01, 0x20, 0x00, 0x00, 0x00, 0x02, 0x06}})
	adapter.respond(t, frame{id: 0x585, data: []byte{0x80, 0x00, 0x20, 0x00, 0x00, 0x00, 0x02, 0x06}})

	c := waitCompletion(t, ch)
	require.False(c.OK())
	require.Equal(bus.AbortObjectNotFound, c.AbortCode)
}

func TestBus_Timeout(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true, WithSDOTimeout(50*time.Millisecond))
	ch, cb := completionChan()

	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x1000}, cb))
	adapter.next(t)

	c := waitCompletion(t, ch)
	require.Equal(bus.AbortTimeout, c.AbortCode)
	require.Equal("t60588000100000000405", adapter.next(t))

	// a late response is dropped
	adapter.respond(t, frame{id: 0x585, data: []byte{0x43, 0x00, 0x10, 0x00, 0x92, 0x01, 0x02, 0x00}})
	select {
	case c := <-ch:
		require.Failf("unexpected completion", "%+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_CloseTransferDropsCallback(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true, WithSDOTimeout(50*time.Millisecond))
	ch, cb := completionChan()

	require.NoError(b.ReadObject(bus.ObjectRequest{Handle: bus.NewHandle(), NodeID: 0x05, Index: 0x1000}, cb))
	adapter.next(t)
	require.NoError(b.CloseTransfer(0x05))

	select {
	case c := <-ch:
		require.Failf("unexpected completion", "%+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_Closed(t *testing.T) {
	require := require.New(t)
	b, adapter := openBus(t, true)
	_, cb := completionChan()

	require.NoError(b.Close())
	require.Equal("C", adapter.next(t))
	require.NoError(b.Close())

	require.ErrorIs(b.ReadObject(bus.ObjectRequest{NodeID: 0x05, Index: 0x1000}, cb), bus.ErrClosed)
	require.ErrorIs(b.ChangeNodeState(0x05, bus.NMTStart), bus.ErrClosed)
}

func TestNew_UnsupportedBitrate(t *testing.T) {
	_, port := newFakeAdapter()
	defer port.Close()

	_, err := New(context.Background(), port, bus.Config{Baudrate: "33"})
	require.ErrorIs(t, err, bus.ErrUnsupported)
}

func TestBitrateCommand(t *testing.T) {
	tests := []struct {
		baudrate string
		expected string
	}{
		{"10", "S0\r"},
		{"125", "S4\r"},
		{"500", "S6\r"},
		{"500K", "S6\r"},
		{"500k", "S6\r"},
		{"1000", "S8\r"},
		{"1M", "S8\r"},
	}

	for _, tt := range tests {
		cmd, err := bitrateCommand(tt.baudrate)
		require.NoError(t, err, tt.baudrate)
		assert.Equal(t, tt.expected, string(cmd), tt.baudrate)
	}

	_, err := bitrateCommand("2M")
	require.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	require := require.New(t)

	f, err := decodeFrame("t701100")
	require.NoError(err)
	require.Equal(uint16(0x701), f.id)
	require.Equal([]byte{0x00}, f.data)

	// with timestamp
	f, err = decodeFrame("t5858431810019C0200001A2B")
	require.NoError(err)
	require.Equal(uint16(0x585), f.id)
	require.Len(f.data, 8)

	f, err = decodeFrame("t0000")
	require.NoError(err)
	require.Empty(f.data)

	for _, line := range []string{"", "t12", "T12345678100", "t7019", "t70120", "t7011ZZ", "tXYZ0"} {
		_, err := decodeFrame(line)
		require.ErrorIs(err, errInvalidFrame, line)
	}

	require.Equal("t00020105\r", string(frame{id: 0x000, data: []byte{0x01, 0x05}}.encode()))
}
