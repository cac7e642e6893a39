package gateway

import "sync/atomic"

// Metrics contains atomic metrics of a gateway.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CommandCount indicates the number of parsed commands dispatched.
	CommandCount atomic.Uint64
	// MalformedCount indicates the number of lines rejected by the parser.
	MalformedCount atomic.Uint64

	// ReplyOKCount indicates the number of 000 replies sent.
	ReplyOKCount atomic.Uint64
	// ReplyFailCount indicates the number of 404 replies sent.
	ReplyFailCount atomic.Uint64

	// BusRejectCount indicates the number of bus calls rejected synchronously.
	BusRejectCount atomic.Uint64
	// BusAbortCount indicates the number of object transfers completed with an abort code.
	BusAbortCount atomic.Uint64
	// TimeoutCount indicates the number of bus operations that expired.
	TimeoutCount atomic.Uint64
	// StaleCompletionCount indicates the number of completions received after their operation ended.
	StaleCompletionCount atomic.Uint64
	// DroppedCompletionCount indicates the number of completions lost to a full queue.
	DroppedCompletionCount atomic.Uint64

	// InflightGauge indicates the number of bus operations in flight.
	InflightGauge atomic.Int64

	// SessionCount indicates the number of sessions accepted.
	SessionCount atomic.Uint64
	// RefusedConnCount indicates the number of connections refused while a session was active.
	RefusedConnCount atomic.Uint64
}

func (m *Metrics) incCommandCount() {
	m.CommandCount.Add(1)
}

func (m *Metrics) incMalformedCount() {
	m.MalformedCount.Add(1)
}

func (m *Metrics) incReplyCount(ok bool) {
	if ok {
		m.ReplyOKCount.Add(1)
	} else {
		m.ReplyFailCount.Add(1)
	}
}

func (m *Metrics) incBusRejectCount() {
	m.BusRejectCount.Add(1)
}

func (m *Metrics) incBusAbortCount() {
	m.BusAbortCount.Add(1)
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incStaleCompletionCount() {
	m.StaleCompletionCount.Add(1)
}

func (m *Metrics) incDroppedCompletionCount() {
	m.DroppedCompletionCount.Add(1)
}

func (m *Metrics) incInflightGauge() {
	m.InflightGauge.Add(1)
}

func (m *Metrics) decInflightGauge() {
	m.InflightGauge.Add(-1)
}

func (m *Metrics) incSessionCount() {
	m.SessionCount.Add(1)
}

func (m *Metrics) incRefusedConnCount() {
	m.RefusedConnCount.Add(1)
}
