package command

import (
	"strconv"
	"strings"
)

const fieldDelimiter = '#'

const (
	nodeIDDigits   = 2
	indexDigits    = 4
	subIndexDigits = 2
	sizeDigits     = 2
	dataDigits     = 16

	maxPathLength     = 100
	maxChannelLength  = 30
	maxBaudrateLength = 4
)

// Parse parses one command line.
//
// Trailing "\r" and "\n" are removed. An unrecognized tag yields a command of Kind Unknown and no
// error; a line shorter than a tag, or a known tag with fields not matching its grammar, yields a
// *MalformedCommandError.
func Parse(line string) (*Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < TagLength {
		return nil, malformed(line, "shorter than %d characters", TagLength)
	}

	cmd := &Command{Kind: KindOf(line[:TagLength]), Raw: line}
	rest := line[TagLength:]

	switch cmd.Kind {
	case Unknown:
		return cmd, nil

	case Scan, Help, Quit:
		if strings.TrimSpace(rest) != "" {
			return nil, malformed(line, "%s takes no arguments", cmd.Kind.Tag())
		}

		return cmd, nil
	}

	fields, err := splitFields(line, rest)
	if err != nil {
		return nil, err
	}

	switch cmd.Kind {
	case StartNode, StopNode, ResetNode:
		err = parseNodeCommand(cmd, fields, BroadcastNodeID)
	case Info:
		err = parseNodeCommand(cmd, fields, 1)
	case ReadObject:
		err = parseReadObject(cmd, fields)
	case WriteObject:
		err = parseWriteObject(cmd, fields)
	case Wait:
		err = parseWait(cmd, fields)
	case LoadConfig:
		err = parseLoad(cmd, fields)
	}
	if err != nil {
		return nil, err
	}

	return cmd, nil
}

// TrimBatchLine strips the leading blanks and the line terminators of a batch file line.
func TrimBatchLine(line string) string {
	return strings.TrimRight(strings.TrimLeft(line, " \t"), "\r\n")
}

// IsSkippable reports whether a trimmed batch file line carries no command:
// blank and whitespace-only lines, and '#' comments.
func IsSkippable(trimmed string) bool {
	s := strings.TrimSpace(trimmed)
	return s == "" || s[0] == '#'
}

func splitFields(line string, rest string) ([]string, error) {
	if rest == "" || rest[0] != fieldDelimiter {
		return nil, malformed(line, "expected '%c' after the tag", fieldDelimiter)
	}

	fields := strings.Split(strings.TrimSpace(rest[1:]), ",")
	for i, f := range fields {
		fields[i] = strings.TrimSpace(f)
	}

	return fields, nil
}

func expectFields(cmd *Command, fields []string, n int) error {
	if len(fields) != n {
		return malformed(cmd.Raw, "%s expects %d fields, got %d", cmd.Kind.Tag(), n, len(fields))
	}

	return nil
}

func parseNodeCommand(cmd *Command, fields []string, minNode uint8) error {
	if err := expectFields(cmd, fields, 1); err != nil {
		return err
	}

	node, err := parseNodeID(cmd.Raw, fields[0], minNode)
	if err != nil {
		return err
	}
	cmd.NodeID = node

	return nil
}

func parseReadObject(cmd *Command, fields []string) error {
	if err := expectFields(cmd, fields, 3); err != nil {
		return err
	}

	return parseObjectAddress(cmd, fields)
}

func parseWriteObject(cmd *Command, fields []string) error {
	if err := expectFields(cmd, fields, 5); err != nil {
		return err
	}

	if err := parseObjectAddress(cmd, fields); err != nil {
		return err
	}

	size, err := parseHex(cmd.Raw, "size", fields[3], sizeDigits)
	if err != nil {
		return err
	}
	if size == 0 || size > uint64(MaxDataSize) {
		return malformed(cmd.Raw, "size %d out of range [1, %d]", size, MaxDataSize)
	}

	data, err := parseHex(cmd.Raw, "data", fields[4], dataDigits)
	if err != nil {
		return err
	}
	if size < 8 && data>>(8*size) != 0 {
		return malformed(cmd.Raw, "data %#x does not fit in %d bytes", data, size)
	}

	cmd.Size = uint8(size)
	cmd.Data = data

	return nil
}

func parseObjectAddress(cmd *Command, fields []string) error {
	node, err := parseNodeID(cmd.Raw, fields[0], 1)
	if err != nil {
		return err
	}

	index, err := parseHex(cmd.Raw, "index", fields[1], indexDigits)
	if err != nil {
		return err
	}

	subIndex, err := parseHex(cmd.Raw, "subindex", fields[2], subIndexDigits)
	if err != nil {
		return err
	}

	cmd.NodeID = node
	cmd.Index = uint16(index)
	cmd.SubIndex = uint8(subIndex)

	return nil
}

func parseWait(cmd *Command, fields []string) error {
	if err := expectFields(cmd, fields, 1); err != nil {
		return err
	}

	sec, err := strconv.Atoi(fields[0])
	if err != nil {
		return malformed(cmd.Raw, "seconds %q is not a decimal integer", fields[0])
	}
	if sec < 0 || sec > MaxWaitSeconds {
		return malformed(cmd.Raw, "seconds %d out of range [0, %d]", sec, MaxWaitSeconds)
	}
	cmd.Seconds = sec

	return nil
}

func parseLoad(cmd *Command, fields []string) error {
	if err := expectFields(cmd, fields, 5); err != nil {
		return err
	}

	params := &LoadParams{
		LibraryPath: fields[0],
		Channel:     fields[1],
		Baudrate:    fields[2],
	}

	for _, f := range []struct {
		name  string
		value string
		limit int
	}{
		{"library path", params.LibraryPath, maxPathLength},
		{"channel", params.Channel, maxChannelLength},
		{"baudrate", params.Baudrate, maxBaudrateLength},
	} {
		if f.value == "" {
			return malformed(cmd.Raw, "empty %s", f.name)
		}
		if len(f.value) > f.limit {
			return malformed(cmd.Raw, "%s longer than %d characters", f.name, f.limit)
		}
	}

	node, err := strconv.ParseUint(fields[3], 10, 8)
	if err != nil || node == 0 || node > uint64(MaxNodeID) {
		return malformed(cmd.Raw, "node id %q out of range [1, %d]", fields[3], MaxNodeID)
	}
	params.NodeID = uint8(node)

	switch fields[4] {
	case "0":
		params.NodeType = SlaveNode
	case "1":
		params.NodeType = MasterNode
	default:
		return malformed(cmd.Raw, "node type %q must be 0 (slave) or 1 (master)", fields[4])
	}

	cmd.Load = params

	return nil
}

func parseNodeID(line string, field string, minNode uint8) (uint8, error) {
	v, err := parseHex(line, "node id", field, nodeIDDigits)
	if err != nil {
		return 0, err
	}
	if v < uint64(minNode) || v > uint64(MaxNodeID) {
		return 0, malformed(line, "node id %#02x out of range [%#02x, %#02x]", v, minNode, MaxNodeID)
	}

	return uint8(v), nil
}

func parseHex(line string, name string, field string, maxDigits int) (uint64, error) {
	if field == "" {
		return 0, malformed(line, "empty %s", name)
	}
	if len(field) > maxDigits {
		return 0, malformed(line, "%s %q wider than %d hex digits", name, field, maxDigits)
	}

	v, err := strconv.ParseUint(field, 16, 64)
	if err != nil {
		return 0, malformed(line, "%s %q is not hexadecimal", name, field)
	}

	return v, nil
}
