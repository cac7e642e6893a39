package slcan

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/arloliu/go-coshell/bus"
)

const (
	cobNMT       uint16 = 0x000
	cobEMCY      uint16 = 0x080
	cobSDOTx     uint16 = 0x580
	cobSDORx     uint16 = 0x600
	cobHeartbeat uint16 = 0x700
)

const (
	ccsDownloadExpedited byte = 0x23
	ccsUploadInitiate    byte = 0x40
	csAbort              byte = 0x80

	scsUploadInitiate   byte = 2
	scsDownloadInitiate byte = 3
)

// transfer is one SDO transfer in progress on the channel of a node.
type transfer struct {
	req   bus.ObjectRequest
	write bool
	cb    bus.Callback

	once sync.Once

	mu    sync.Mutex
	timer *time.Timer
}

// arm calls expire after d unless the transfer finished before.
func (t *transfer) arm(d time.Duration, expire func()) {
	t.mu.Lock()
	t.timer = time.AfterFunc(d, expire)
	t.mu.Unlock()
}

func (t *transfer) stopTimer() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.mu.Unlock()
}

// finish calls the callback unless the transfer already finished.
func (t *transfer) finish(c bus.Completion) {
	t.once.Do(func() {
		t.stopTimer()
		if t.cb != nil {
			t.cb(c)
		}
	})
}

// drop ends the transfer without calling the callback.
func (t *transfer) drop() {
	t.once.Do(t.stopTimer)
}

func (t *transfer) completion() bus.Completion {
	return bus.Completion{
		Handle:   t.req.Handle,
		NodeID:   t.req.NodeID,
		Index:    t.req.Index,
		SubIndex: t.req.SubIndex,
	}
}

func sdoHeader(cs byte, req bus.ObjectRequest) []byte {
	data := make([]byte, 8)
	data[0] = cs
	binary.LittleEndian.PutUint16(data[1:3], req.Index)
	data[3] = req.SubIndex

	return data
}

func uploadRequest(req bus.ObjectRequest) frame {
	return frame{id: cobSDORx + uint16(req.NodeID), data: sdoHeader(ccsUploadInitiate, req)}
}

func downloadRequest(req bus.ObjectRequest) frame {
	data := sdoHeader(ccsDownloadExpedited|(4-req.Size)<<2, req)
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], req.Value)
	copy(data[4:], value[:req.Size])

	return frame{id: cobSDORx + uint16(req.NodeID), data: data}
}

func abortRequest(req bus.ObjectRequest, code bus.AbortCode) frame {
	data := sdoHeader(csAbort, req)
	binary.LittleEndian.PutUint32(data[4:], uint32(code))

	return frame{id: cobSDORx + uint16(req.NodeID), data: data}
}

// matches reports whether the multiplexer of a response addresses the object of t.
func (t *transfer) matches(data []byte) bool {
	return binary.LittleEndian.Uint16(data[1:3]) == t.req.Index && data[3] == t.req.SubIndex
}

// parseResponse decodes the server response of t. protocolAbort is non-zero when the response
// violates the protocol and the transfer must be aborted toward the node.
func (t *transfer) parseResponse(data []byte) (c bus.Completion, protocolAbort bus.AbortCode) {
	c = t.completion()

	cs := data[0]
	if cs == csAbort {
		c.AbortCode = bus.AbortCode(binary.LittleEndian.Uint32(data[4:8]))
		return c, 0
	}

	scs := cs >> 5
	switch {
	case t.write && scs == scsDownloadInitiate:
		return c, 0

	case !t.write && scs == scsUploadInitiate:
		expedited := cs&0x02 != 0
		if !expedited {
			c.AbortCode = bus.AbortUnsupportedAccess
			return c, bus.AbortUnsupportedAccess
		}

		size := uint8(4)
		if cs&0x01 != 0 {
			size = 4 - (cs>>2)&0x03
		}
		var value [8]byte
		copy(value[:], data[4:4+size])
		c.Value = binary.LittleEndian.Uint64(value[:])
		c.Size = size

		return c, 0
	}

	c.AbortCode = bus.AbortCommandSpecifier

	return c, bus.AbortCommandSpecifier
}
