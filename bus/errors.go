package bus

import "errors"

var (
	// ErrBusy is returned when the driver cannot queue a request.
	ErrBusy = errors.New("bus stack busy")
	// ErrChannelBusy is returned when the SDO channel of the node has not been released.
	ErrChannelBusy = errors.New("sdo channel busy")
	// ErrNotMaster is returned for NMT commands on a bus opened as slave.
	ErrNotMaster = errors.New("nmt commands require a master node")
	// ErrUnsupported is returned for requests the driver cannot carry.
	ErrUnsupported = errors.New("unsupported by driver")
	// ErrInvalidNode is returned for node ids outside [1, 127], or [0, 127] for NMT commands.
	ErrInvalidNode = errors.New("invalid node id")
	// ErrClosed is returned by a closed bus.
	ErrClosed = errors.New("bus closed")
	// ErrUnknownDriver is returned when neither the requested nor the default driver is registered.
	ErrUnknownDriver = errors.New("unknown bus driver")
)
