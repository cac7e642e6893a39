package bus

import (
	"context"
	"fmt"

	"github.com/arloliu/go-coshell/logger"
)

// NMTCommand is the command specifier of an NMT node control message.
type NMTCommand uint8

const (
	NMTStart               NMTCommand = 0x01
	NMTStop                NMTCommand = 0x02
	NMTEnterPreOperational NMTCommand = 0x80
	NMTResetNode           NMTCommand = 0x81
	NMTResetCommunication  NMTCommand = 0x82
)

func (c NMTCommand) String() string {
	switch c {
	case NMTStart:
		return "start"
	case NMTStop:
		return "stop"
	case NMTEnterPreOperational:
		return "enter pre-operational"
	case NMTResetNode:
		return "reset node"
	case NMTResetCommunication:
		return "reset communication"
	default:
		return fmt.Sprintf("nmt(0x%02x)", uint8(c))
	}
}

// ObjectRequest addresses one object dictionary entry of a node.
//
// Handle is chosen by the caller and is echoed in the Completion, so the caller can register
// the handle before the request is issued. Size and Value are only used by writes.
type ObjectRequest struct {
	Handle   Handle
	NodeID   uint8
	Index    uint16
	SubIndex uint8
	Size     uint8
	Value    uint64
}

func (r ObjectRequest) String() string {
	return fmt.Sprintf("node=%#02x index=%#04x subindex=%#02x", r.NodeID, r.Index, r.SubIndex)
}

// Completion is the outcome of an object transfer.
type Completion struct {
	Handle   Handle
	NodeID   uint8
	Index    uint16
	SubIndex uint8
	// Value and Size hold the uploaded data of a successful read.
	Value uint64
	Size  uint8
	// AbortCode is non-zero when the transfer was aborted by either side.
	AbortCode AbortCode
	// Err reports a driver failure that is not an SDO abort.
	Err error
}

// OK reports whether the transfer succeeded.
func (c Completion) OK() bool {
	return c.Err == nil && c.AbortCode == 0
}

// Callback receives the completion of an object transfer.
//
// It is invoked from a goroutine owned by the driver and must not block.
type Callback func(Completion)

// Bus is the asynchronous operation API of a CANopen stack.
type Bus interface {
	// ChangeNodeState sends an NMT command to node, or to every node when node is 0.
	// A nil error means the request was queued, not that the node acted on it.
	ChangeNodeState(node uint8, cmd NMTCommand) error
	// ReadObject starts an SDO upload. cb is called once when the transfer ends.
	ReadObject(req ObjectRequest, cb Callback) error
	// WriteObject starts an SDO download of req.Size bytes of req.Value. cb is called once when
	// the transfer ends.
	WriteObject(req ObjectRequest, cb Callback) error
	// CloseTransfer releases the SDO channel of node. A transfer still running is dropped
	// without calling its callback.
	CloseTransfer(node uint8) error
	// Close releases the bus device.
	Close() error
}

// Config carries the parameters of the load# command to a driver.
type Config struct {
	// LibraryPath is the driver selector, e.g. "libcanfestival_can_virtual.so" or "slcan".
	LibraryPath string
	// Channel is the bus device, e.g. "can0" or "/dev/ttyACM0".
	Channel string
	// Baudrate is the bus bitrate, e.g. "500" or "1M".
	Baudrate string
	// NodeID is the id of the local node.
	NodeID uint8
	// Master enables NMT master services.
	Master bool

	Logger logger.Logger
}

// Opener opens a bus with a driver.
type Opener func(ctx context.Context, cfg Config) (Bus, error)
