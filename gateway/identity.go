package gateway

import (
	"fmt"
	"strings"
	"sync"

	"github.com/arloliu/go-coshell/reply"
)

// IdentitySteps is the number of reads of an identity query.
const IdentitySteps = 4

type identityStep struct {
	index    uint16
	subIndex uint8
	label    string
}

var identitySteps = [IdentitySteps]identityStep{
	{index: 0x1000, subIndex: 0x00, label: "Device type"},
	{index: 0x1018, subIndex: 0x01, label: "Vendor ID"},
	{index: 0x1018, subIndex: 0x02, label: "Product Code"},
	{index: 0x1018, subIndex: 0x03, label: "Revision Number"},
}

// IdentityQuery is the step cursor of the identity query of a session.
//
// Step is 0 when no query runs, otherwise the 1-based index of the read in progress. Every
// recorded read advances the cursor whether it succeeded or not; recording the fourth read
// returns the cursor to 0.
type IdentityQuery struct {
	mu     sync.Mutex
	step   int
	nodeID uint8
	values [IdentitySteps]uint32
	ok     [IdentitySteps]bool
}

// Step returns the current step, 0 when idle.
func (q *IdentityQuery) Step() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.step
}

// NodeID returns the node of the last query.
func (q *IdentityQuery) NodeID() uint8 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.nodeID
}

// Begin starts a query of node at step 1.
func (q *IdentityQuery) Begin(node uint8) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.step != 0 {
		return fmt.Errorf("%w for node %d", ErrIdentityQueryBusy, q.nodeID)
	}

	q.step = 1
	q.nodeID = node
	q.values = [IdentitySteps]uint32{}
	q.ok = [IdentitySteps]bool{}

	return nil
}

// abort returns the cursor to 0 without a result.
func (q *IdentityQuery) abort() {
	q.mu.Lock()
	q.step = 0
	q.mu.Unlock()
}

// current returns the object read by the current step. It must only be called while a query runs.
func (q *IdentityQuery) current() identityStep {
	q.mu.Lock()
	defer q.mu.Unlock()

	return identitySteps[q.step-1]
}

// Record stores the outcome of the current step and advances the cursor.
// It returns true when another step must be issued.
func (q *IdentityQuery) Record(ok bool, value uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.step == 0 {
		return false
	}

	q.ok[q.step-1] = ok
	q.values[q.step-1] = value
	q.step++
	if q.step > IdentitySteps {
		q.step = 0
		return false
	}

	return true
}

// Result formats the reply of the last finished query. It succeeds only when every read did.
func (q *IdentityQuery) Result() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	allOK := true
	parts := make([]string, 0, IdentitySteps)
	for i, step := range identitySteps {
		value := "-"
		if q.ok[i] {
			value = fmt.Sprintf("%x", q.values[i])
		} else {
			allOK = false
		}
		parts = append(parts, step.label+": "+value)
	}

	return reply.Format(allOK, strings.Join(parts, ", "))
}
