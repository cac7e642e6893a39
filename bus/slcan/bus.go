// Package slcan drives a CANopen network through a LAWICEL (SLCAN) serial CAN adapter.
//
// The driver is a minimal NMT master and SDO client: NMT node control, expedited SDO uploads and
// downloads of up to 4 bytes, SDO aborts and timeouts. Boot-up, heartbeat and emergency frames
// are logged.
package slcan

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.bug.st/serial"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/command"
	"github.com/arloliu/go-coshell/internal/task"
	"github.com/arloliu/go-coshell/logger"
)

// DriverName is the registry name of the SLCAN driver.
const DriverName = "slcan"

const (
	cmdClose = "C\r"
	cmdOpen  = "O\r"

	bell = '\a'
)

type options struct {
	serialBaudRate int
	sdoTimeout     time.Duration
}

// Option configures the SLCAN driver.
type Option func(*options)

// WithSerialBaudRate sets the baud rate of the serial link to the adapter. Defaults to 115200.
func WithSerialBaudRate(baud int) Option {
	return func(o *options) {
		if baud > 0 {
			o.serialBaudRate = baud
		}
	}
}

// WithSDOTimeout sets the time a node has to answer an SDO request. Defaults to 1 second.
func WithSDOTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sdoTimeout = d
		}
	}
}

// Bus is a CANopen network behind an SLCAN adapter.
type Bus struct {
	cfg    bus.Config
	opts   options
	logger logger.Logger

	port    io.ReadWriteCloser
	writeMu sync.Mutex

	transfers *xsync.MapOf[uint8, *transfer]
	reader    *bufio.Reader
	taskMgr   *task.Manager
	closed    atomic.Bool
}

var _ bus.Bus = (*Bus)(nil)

// Opener returns a bus.Opener opening the serial port named by the load# channel.
func Opener(opts ...Option) bus.Opener {
	return func(ctx context.Context, cfg bus.Config) (bus.Bus, error) {
		return Open(ctx, cfg, opts...)
	}
}

// Open opens the serial port cfg.Channel and sets the adapter up.
func Open(ctx context.Context, cfg bus.Config, opts ...Option) (*Bus, error) {
	o := newOptions(opts)

	port, err := serial.Open(cfg.Channel, &serial.Mode{
		BaudRate: o.serialBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Channel, err)
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	_ = port.ResetInputBuffer()

	b, err := New(ctx, port, cfg, opts...)
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	return b, nil
}

func newOptions(opts []Option) options {
	o := options{serialBaudRate: 115200, sdoTimeout: time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// New sets up the adapter reachable through port and starts receiving frames.
// The bus owns port and closes it on Close.
func New(ctx context.Context, port io.ReadWriteCloser, cfg bus.Config, opts ...Option) (*Bus, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}

	bitrate, err := bitrateCommand(cfg.Baudrate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bus.ErrUnsupported, err)
	}

	b := &Bus{
		cfg:       cfg,
		opts:      newOptions(opts),
		logger:    cfg.Logger,
		port:      port,
		transfers: xsync.NewMapOf[uint8, *transfer](),
		reader:    bufio.NewReader(port),
		taskMgr:   task.NewManager(ctx, cfg.Logger),
	}

	// close first in case the adapter was left open
	for _, cmd := range [][]byte{[]byte(cmdClose), bitrate, []byte(cmdOpen)} {
		if err := b.write(cmd); err != nil {
			return nil, fmt.Errorf("setup adapter: %w", err)
		}
	}

	if err := b.taskMgr.Start("slcanReceiver", b.receive, nil); err != nil {
		return nil, err
	}

	b.logger.Info("slcan bus opened", "channel", cfg.Channel, "baudrate", cfg.Baudrate, "node_id", cfg.NodeID, "master", cfg.Master)

	return b, nil
}

func (b *Bus) write(p []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	_, err := b.port.Write(p)

	return err
}

func (b *Bus) send(f frame) error {
	b.logger.Debug("send frame", "frame", f.String())
	return b.write(f.encode())
}

func (b *Bus) ChangeNodeState(id uint8, cmd bus.NMTCommand) error {
	if b.closed.Load() {
		return bus.ErrClosed
	}
	if !b.cfg.Master {
		return bus.ErrNotMaster
	}
	if id > command.MaxNodeID {
		return fmt.Errorf("%w: %#02x", bus.ErrInvalidNode, id)
	}

	return b.send(frame{id: cobNMT, data: []byte{byte(cmd), id}})
}

func (b *Bus) ReadObject(req bus.ObjectRequest, cb bus.Callback) error {
	return b.startTransfer(&transfer{req: req, cb: cb}, uploadRequest(req))
}

func (b *Bus) WriteObject(req bus.ObjectRequest, cb bus.Callback) error {
	if req.Size == 0 || req.Size > 4 {
		return fmt.Errorf("%w: segmented download of %d bytes", bus.ErrUnsupported, req.Size)
	}

	return b.startTransfer(&transfer{req: req, write: true, cb: cb}, downloadRequest(req))
}

func (b *Bus) startTransfer(t *transfer, request frame) error {
	if b.closed.Load() {
		return bus.ErrClosed
	}

	node := t.req.NodeID
	if node == command.BroadcastNodeID || node > command.MaxNodeID {
		return fmt.Errorf("%w: %#02x", bus.ErrInvalidNode, node)
	}

	if _, busy := b.transfers.LoadOrStore(node, t); busy {
		return fmt.Errorf("%w: node %#02x", bus.ErrChannelBusy, node)
	}

	t.arm(b.opts.sdoTimeout, func() { b.expire(t) })

	if err := b.send(request); err != nil {
		t.drop()
		b.transfers.Delete(node)

		return err
	}

	return nil
}

func (b *Bus) expire(t *transfer) {
	b.logger.Debug("sdo timeout", "request", t.req)

	c := t.completion()
	c.AbortCode = bus.AbortTimeout
	t.finish(c)

	if err := b.send(abortRequest(t.req, bus.AbortTimeout)); err != nil {
		b.logger.Debug("failed to send sdo abort", "request", t.req, "error", err)
	}
}

func (b *Bus) CloseTransfer(id uint8) error {
	if t, ok := b.transfers.LoadAndDelete(id); ok {
		t.drop()
	}

	return nil
}

func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := b.write([]byte(cmdClose)); err != nil {
		b.logger.Debug("failed to close adapter channel", "error", err)
	}

	b.taskMgr.Stop()
	err := b.port.Close()
	b.taskMgr.Wait()

	b.transfers.Range(func(id uint8, t *transfer) bool {
		t.drop()
		b.transfers.Delete(id)

		return true
	})

	b.logger.Info("slcan bus closed", "channel", b.cfg.Channel)

	return err
}

// receive reads one response of the adapter.
func (b *Bus) receive() bool {
	line, err := b.readLine()
	if err != nil {
		if !b.closed.Load() && !errors.Is(err, io.EOF) {
			b.logger.Error("failed to read from adapter", "error", err)
		}

		return false
	}

	switch {
	case line == "":
		// command acknowledged
	case line[0] == byte(bell):
		b.logger.Warn("adapter rejected a command")
	case line[0] == 't':
		f, err := decodeFrame(line)
		if err != nil {
			b.logger.Debug("drop frame", "error", err)
			return true
		}
		b.handleFrame(f)
	case line[0] == 'z' || line[0] == 'Z':
		// transmit acknowledged
	default:
		b.logger.Debug("ignore adapter message", "message", line)
	}

	return true
}

// readLine returns the next message of the adapter without its '\r' terminator.
// A bell byte is returned as a one-byte message.
func (b *Bus) readLine() (string, error) {
	var buf []byte
	for {
		c, err := b.reader.ReadByte()
		if err != nil {
			return "", err
		}

		switch c {
		case '\r':
			return string(buf), nil
		case bell:
			if len(buf) == 0 {
				return string(bell), nil
			}
		default:
			buf = append(buf, c)
		}
	}
}

func (b *Bus) handleFrame(f frame) {
	switch {
	case f.id > cobSDOTx && f.id <= cobSDOTx+uint16(command.MaxNodeID):
		b.handleSDOResponse(uint8(f.id-cobSDOTx), f.data)

	case f.id > cobHeartbeat && f.id <= cobHeartbeat+uint16(command.MaxNodeID) && len(f.data) >= 1:
		node := f.id - cobHeartbeat
		if f.data[0] == 0x00 {
			b.logger.Info("slave boot up", "node_id", node)
		} else {
			b.logger.Debug("heartbeat", "node_id", node, "state", f.data[0])
		}

	case f.id > cobEMCY && f.id <= cobEMCY+uint16(command.MaxNodeID) && len(f.data) >= 3:
		b.logger.Warn("emergency", "node_id", f.id-cobEMCY,
			"error_code", fmt.Sprintf("%04X", binary.LittleEndian.Uint16(f.data[0:2])), "error_register", f.data[2])

	default:
		b.logger.Debug("ignore frame", "frame", f.String())
	}
}

func (b *Bus) handleSDOResponse(node uint8, data []byte) {
	t, ok := b.transfers.Load(node)
	if !ok {
		b.logger.Debug("sdo response without transfer", "node_id", node)
		return
	}
	if len(data) != 8 {
		b.logger.Debug("drop short sdo response", "node_id", node, "length", len(data))
		return
	}
	if !t.matches(data) {
		b.logger.Debug("drop sdo response for another object", "request", t.req)
		return
	}

	c, protocolAbort := t.parseResponse(data)
	if protocolAbort != 0 {
		if err := b.send(abortRequest(t.req, protocolAbort)); err != nil {
			b.logger.Debug("failed to send sdo abort", "request", t.req, "error", err)
		}
	}

	t.finish(c)
}
