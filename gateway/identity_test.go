package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityQuery_FailingReadsTerminate(t *testing.T) {
	require := require.New(t)

	var q IdentityQuery
	require.Equal(0, q.Step())
	require.False(q.Record(false, 0), "record without a query")

	require.NoError(q.Begin(0x05))
	require.Equal(1, q.Step())

	records := 0
	for q.Record(false, 0) {
		records++
		require.Equal(records+1, q.Step())
		require.LessOrEqual(records, IdentitySteps)
	}
	records++

	require.Equal(IdentitySteps, records)
	require.Equal(0, q.Step())
	require.Equal("404 Device type: -, Vendor ID: -, Product Code: -, Revision Number: -", q.Result())
}

func TestIdentityQuery_Result(t *testing.T) {
	require := require.New(t)

	var q IdentityQuery
	require.NoError(q.Begin(0x05))
	require.Equal(identitySteps[0], q.current())
	require.True(q.Record(true, 0x20192))
	require.Equal(identitySteps[1], q.current())
	require.True(q.Record(true, 0x29c))
	require.True(q.Record(true, 0x201))
	require.False(q.Record(true, 0x10003))

	require.Equal("000 Device type: 20192, Vendor ID: 29c, Product Code: 201, Revision Number: 10003", q.Result())

	// a new query clears the previous values
	require.NoError(q.Begin(0x06))
	require.Equal(uint8(0x06), q.NodeID())
	require.True(q.Record(true, 0x1))
	require.True(q.Record(false, 0))
	require.True(q.Record(true, 0x3))
	require.False(q.Record(true, 0x4))
	require.Equal("404 Device type: 1, Vendor ID: -, Product Code: 3, Revision Number: 4", q.Result())
}

func TestIdentityQuery_BeginWhileRunning(t *testing.T) {
	require := require.New(t)

	var q IdentityQuery
	require.NoError(q.Begin(0x05))
	require.True(q.Record(true, 1))

	err := q.Begin(0x06)
	require.ErrorIs(err, ErrIdentityQueryBusy)
	require.Equal(uint8(0x05), q.NodeID())
	require.Equal(2, q.Step())

	q.abort()
	require.Equal(0, q.Step())
	require.NoError(q.Begin(0x06))
}
