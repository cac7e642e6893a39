package command

import "fmt"

const (
	// BroadcastNodeID addresses every node of the network in NMT commands.
	BroadcastNodeID uint8 = 0x00
	// MaxNodeID is the highest addressable node id.
	MaxNodeID uint8 = 127
	// MaxDataSize is the widest payload of a write, in bytes.
	MaxDataSize uint8 = 8
	// MaxWaitSeconds bounds the duration of wait#.
	MaxWaitSeconds = 3600
)

// NodeType selects the role of the gateway node created by load#.
type NodeType uint8

const (
	SlaveNode  NodeType = 0
	MasterNode NodeType = 1
)

func (t NodeType) String() string {
	if t == MasterNode {
		return "master"
	}

	return "slave"
}

// LoadParams holds the fields of a load# command.
type LoadParams struct {
	// LibraryPath names the bus driver, e.g. "libcanfestival_can_virtual.so" or "slcan".
	LibraryPath string
	// Channel is the bus device, e.g. "can0" or "/dev/ttyACM0".
	Channel string
	// Baudrate is the bus bitrate as given on the wire, e.g. "500" or "1M".
	Baudrate string
	// NodeID is the id of the gateway node itself.
	NodeID uint8
	// NodeType is the role of the gateway node.
	NodeType NodeType
}

// Command is one parsed command line.
//
// Only the fields relevant to Kind are set.
type Command struct {
	Kind Kind
	// Raw is the line the command was parsed from, without line terminators.
	Raw string

	NodeID   uint8
	Index    uint16
	SubIndex uint8
	Size     uint8
	Data     uint64

	Seconds int
	Load    *LoadParams
}

// String returns a compact description used in logs.
func (c *Command) String() string {
	switch c.Kind {
	case StartNode, StopNode, ResetNode, Info:
		return fmt.Sprintf("%s(node=%#02x)", c.Kind, c.NodeID)
	case ReadObject:
		return fmt.Sprintf("%s(node=%#02x, index=%#04x, subindex=%#02x)", c.Kind, c.NodeID, c.Index, c.SubIndex)
	case WriteObject:
		return fmt.Sprintf("%s(node=%#02x, index=%#04x, subindex=%#02x, size=%d, data=%#x)",
			c.Kind, c.NodeID, c.Index, c.SubIndex, c.Size, c.Data)
	case Wait:
		return fmt.Sprintf("%s(%ds)", c.Kind, c.Seconds)
	case LoadConfig:
		if c.Load == nil {
			return c.Kind.String()
		}

		return fmt.Sprintf("%s(lib=%s, channel=%s, baudrate=%s, node=%d, type=%s)",
			c.Kind, c.Load.LibraryPath, c.Load.Channel, c.Load.Baudrate, c.Load.NodeID, c.Load.NodeType)
	default:
		return c.Kind.String()
	}
}
