package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ReadObjectRoundTrip(t *testing.T) {
	require := require.New(t)

	cmd, err := Parse("rsdo#42,1018,01")
	require.NoError(err)
	require.Equal(ReadObject, cmd.Kind)
	require.Equal(uint8(0x42), cmd.NodeID)
	require.Equal(uint16(0x1018), cmd.Index)
	require.Equal(uint8(0x01), cmd.SubIndex)
	require.Equal("rsdo#42,1018,01", cmd.Raw)

	for _, tc := range []struct {
		line  string
		node  uint8
		index uint16
		sub   uint8
	}{
		{"rsdo#01,0000,00", 0x01, 0x0000, 0x00},
		{"rsdo#7F,FFFF,FF", 0x7f, 0xffff, 0xff},
		{"rsdo#7f,ffff,ff", 0x7f, 0xffff, 0xff},
		{"rsdo#6,6060,0", 0x06, 0x6060, 0x00},
		{"rsdo#05,1018,01\r\n", 0x05, 0x1018, 0x01},
	} {
		cmd, err := Parse(tc.line)
		require.NoError(err, tc.line)
		require.Equal(tc.node, cmd.NodeID, tc.line)
		require.Equal(tc.index, cmd.Index, tc.line)
		require.Equal(tc.sub, cmd.SubIndex, tc.line)
	}
}

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		line     string
		expected Command
	}{
		{"ssta#05", Command{Kind: StartNode, NodeID: 0x05}},
		{"ssto#7F", Command{Kind: StopNode, NodeID: 0x7f}},
		{"srst#00", Command{Kind: ResetNode, NodeID: 0x00}},
		{"info#6", Command{Kind: Info, NodeID: 0x06}},
		{"scan", Command{Kind: Scan}},
		{"help", Command{Kind: Help}},
		{"quit", Command{Kind: Quit}},
		{"quit  ", Command{Kind: Quit}},
		{"wait#3", Command{Kind: Wait, Seconds: 3}},
		{"wait#0", Command{Kind: Wait}},
		{"wsdo#42,6200,01,01,FF", Command{Kind: WriteObject, NodeID: 0x42, Index: 0x6200, SubIndex: 0x01, Size: 1, Data: 0xff}},
		{"wsdo#6,6060,00,04,00000001", Command{Kind: WriteObject, NodeID: 0x06, Index: 0x6060, Size: 4, Data: 1}},
		{"wsdo#6,607A,00,08,FFFFFFFFFFFFFFFF", Command{Kind: WriteObject, NodeID: 0x06, Index: 0x607a, Size: 8, Data: ^uint64(0)}},
		{"load#/dev/can0,can0,500,01,1", Command{Kind: LoadConfig, Load: &LoadParams{
			LibraryPath: "/dev/can0", Channel: "can0", Baudrate: "500", NodeID: 1, NodeType: MasterNode,
		}}},
		{"load#libcanfestival_can_virtual.so,vcan0,1M,127,0", Command{Kind: LoadConfig, Load: &LoadParams{
			LibraryPath: "libcanfestival_can_virtual.so", Channel: "vcan0", Baudrate: "1M", NodeID: 127, NodeType: SlaveNode,
		}}},
		{"xyzw#01", Command{Kind: Unknown}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.NoError(t, err)

			tt.expected.Raw = tt.line
			assert.Equal(t, &tt.expected, cmd)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"short", "ss"},
		{"three chars", "rsd"},
		{"write missing size and data", "wsdo#42,6200,01"},
		{"write missing data", "wsdo#42,6200,01,01"},
		{"write too many fields", "wsdo#42,6200,01,01,FF,00"},
		{"write zero size", "wsdo#42,6200,01,00,FF"},
		{"write size too large", "wsdo#42,6200,01,09,FF"},
		{"write data wider than size", "wsdo#42,6200,01,01,1FF"},
		{"write data not hex", "wsdo#42,6200,01,01,ZZ"},
		{"read missing subindex", "rsdo#42,1018"},
		{"read index too wide", "rsdo#42,10180,01"},
		{"read node too wide", "rsdo#142,1018,01"},
		{"read subindex too wide", "rsdo#42,1018,001"},
		{"read broadcast node", "rsdo#00,1018,01"},
		{"read node out of range", "rsdo#80,1018,01"},
		{"read empty field", "rsdo#42,,01"},
		{"read hex prefix", "rsdo#42,0x10,01"},
		{"start missing delimiter", "ssta05"},
		{"start missing node", "ssta#"},
		{"start node out of range", "ssta#FF"},
		{"start extra field", "ssta#05,06"},
		{"info broadcast", "info#00"},
		{"scan with argument", "scan#01"},
		{"quit with argument", "quit now"},
		{"wait not decimal", "wait#ab"},
		{"wait negative", "wait#-1"},
		{"wait too long", "wait#99999"},
		{"load missing type", "load#lib,can0,500,1"},
		{"load bad type", "load#lib,can0,500,1,2"},
		{"load node zero", "load#lib,can0,500,0,1"},
		{"load node hex", "load#lib,can0,500,0A,1"},
		{"load empty path", "load#,can0,500,1,1"},
		{"load baudrate too long", "load#lib,can0,500000,1,1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Parse(tt.line)
			require.Nil(t, cmd)
			require.ErrorIs(t, err, ErrMalformedCommand)

			var mErr *MalformedCommandError
			require.True(t, errors.As(err, &mErr))
			require.Equal(t, tt.line, mErr.Line)
			require.NotEmpty(t, mErr.Reason)
		})
	}
}

func TestBatchLineHelpers(t *testing.T) {
	tests := []struct {
		line      string
		trimmed   string
		skippable bool
	}{
		{"ssta#05\n", "ssta#05", false},
		{"   ssta#05\r\n", "ssta#05", false},
		{"\t rsdo#05,1018,01", "rsdo#05,1018,01", false},
		{"# comment\n", "# comment", true},
		{"    # indented comment", "# indented comment", true},
		{"\n", "", true},
		{"     \n", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		trimmed := TrimBatchLine(tt.line)
		assert.Equal(t, tt.trimmed, trimmed, "line %q", tt.line)
		assert.Equal(t, tt.skippable, IsSkippable(trimmed), "line %q", tt.line)
	}
}

func TestKind(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(ReadObject, KindOf("rsdo"))
	assert.Equal(Unknown, KindOf("RSDO"))
	assert.Equal("wsdo", WriteObject.Tag())
	assert.Equal("", Unknown.Tag())

	assert.True(StartNode.IsBusTargeted())
	assert.True(Scan.IsBusTargeted())
	assert.True(Info.IsBusTargeted())
	assert.False(Wait.IsBusTargeted())
	assert.False(LoadConfig.IsBusTargeted())
	assert.False(Help.IsBusTargeted())
	assert.False(Quit.IsBusTargeted())

	assert.Equal("commands: load ssta ssto srst scan wait info rsdo wsdo help quit", HelpSummary())
}
