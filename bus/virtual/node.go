package virtual

import (
	"sync"

	"github.com/arloliu/go-coshell/bus"
)

// State is the NMT state of a virtual node.
type State uint8

const (
	StateInitializing   State = 0x00
	StateStopped        State = 0x04
	StateOperational    State = 0x05
	StatePreOperational State = 0x7f
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateStopped:
		return "stopped"
	case StateOperational:
		return "operational"
	case StatePreOperational:
		return "pre-operational"
	default:
		return "unknown"
	}
}

type object struct {
	size     uint8
	value    uint64
	readOnly bool
}

type node struct {
	mu       sync.Mutex
	id       uint8
	state    State
	defaults []objectDef
	objects  map[objectKey]*object
	aborts   map[objectKey]bus.AbortCode
	silent   bool
}

func identityObjects(identity Identity) []objectDef {
	return []objectDef{
		{key: objectKey{0x1000, 0x00}, size: 4, value: uint64(identity.DeviceType), readOnly: true},
		{key: objectKey{0x1017, 0x00}, size: 2, value: 0},
		{key: objectKey{0x1018, 0x00}, size: 1, value: 4, readOnly: true},
		{key: objectKey{0x1018, 0x01}, size: 4, value: uint64(identity.VendorID), readOnly: true},
		{key: objectKey{0x1018, 0x02}, size: 4, value: uint64(identity.ProductCode), readOnly: true},
		{key: objectKey{0x1018, 0x03}, size: 4, value: uint64(identity.Revision), readOnly: true},
		{key: objectKey{0x1018, 0x04}, size: 4, value: 0, readOnly: true},
	}
}

func newNode(id uint8, identity Identity, extra []objectDef, aborts map[objectKey]bus.AbortCode, silent bool) *node {
	n := &node{
		id:       id,
		defaults: append(identityObjects(identity), extra...),
		aborts:   aborts,
		silent:   silent,
	}
	n.reset()

	return n
}

// reset restores the power-on object values and enters pre-operational. Caller holds n.mu or
// owns n exclusively.
func (n *node) reset() {
	n.objects = make(map[objectKey]*object, len(n.defaults))
	for _, def := range n.defaults {
		n.objects[def.key] = &object{size: def.size, value: def.value, readOnly: def.readOnly}
	}
	n.state = StatePreOperational
}

func (n *node) applyNMT(cmd bus.NMTCommand) (bootUp bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch cmd {
	case bus.NMTStart:
		n.state = StateOperational
	case bus.NMTStop:
		n.state = StateStopped
	case bus.NMTEnterPreOperational:
		n.state = StatePreOperational
	case bus.NMTResetNode:
		n.reset()
		return true
	case bus.NMTResetCommunication:
		n.state = StatePreOperational
		return true
	}

	return false
}

func (n *node) read(key objectKey) (value uint64, size uint8, abort bus.AbortCode) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if code, ok := n.aborts[key]; ok {
		return 0, 0, code
	}
	if n.state == StateStopped {
		return 0, 0, bus.AbortTimeout
	}

	obj, ok := n.objects[key]
	if !ok {
		return 0, 0, bus.AbortObjectNotFound
	}

	return obj.value, obj.size, 0
}

func (n *node) write(key objectKey, size uint8, value uint64) bus.AbortCode {
	n.mu.Lock()
	defer n.mu.Unlock()

	if code, ok := n.aborts[key]; ok {
		return code
	}
	if n.state == StateStopped {
		return bus.AbortTimeout
	}

	obj, ok := n.objects[key]
	switch {
	case !ok:
		return bus.AbortObjectNotFound
	case obj.readOnly:
		return bus.AbortReadOnly
	case size > obj.size:
		return bus.AbortLengthTooHigh
	case size < obj.size:
		return bus.AbortLengthTooLow
	}
	obj.value = value

	return 0
}

func (n *node) getState() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.state
}
