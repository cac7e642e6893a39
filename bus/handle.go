package bus

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
)

// Handle identifies one object transfer.
type Handle uint32

// handleGenerator starts from a random value and increments atomically, so handles stay unique
// across concurrent callers and are unlikely to collide with handles of a previous process.
type handleGenerator struct {
	id atomic.Uint32
}

func newHandleGenerator() *handleGenerator {
	inst := &handleGenerator{}
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return inst
	}
	inst.id.Store(binary.LittleEndian.Uint32(buf[:]))

	return inst
}

func (g *handleGenerator) next() Handle {
	for {
		if h := Handle(g.id.Add(1)); h != 0 {
			return h
		}
	}
}

var (
	genInst *handleGenerator
	genOnce sync.Once
)

// NewHandle returns a unique non-zero handle.
func NewHandle() Handle {
	genOnce.Do(func() {
		genInst = newHandleGenerator()
	})

	return genInst.next()
}
