package slcan

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errInvalidFrame = errors.New("invalid slcan frame")

// frame is a standard 11-bit CAN frame.
type frame struct {
	id   uint16
	data []byte
}

func (f frame) String() string {
	return fmt.Sprintf("%03X#%X", f.id, f.data)
}

// encode returns the LAWICEL transmit command of f, "tiiildd..\r".
func (f frame) encode() []byte {
	return []byte(fmt.Sprintf("t%03X%d%X\r", f.id, len(f.data), f.data))
}

// decodeFrame parses a received standard frame line without its terminator.
func decodeFrame(line string) (frame, error) {
	if len(line) < 5 || line[0] != 't' {
		return frame{}, fmt.Errorf("%w: %q", errInvalidFrame, line)
	}

	id, err := strconv.ParseUint(line[1:4], 16, 11)
	if err != nil {
		return frame{}, fmt.Errorf("%w: id of %q", errInvalidFrame, line)
	}

	dlc := int(line[4] - '0')
	if dlc < 0 || dlc > 8 {
		return frame{}, fmt.Errorf("%w: dlc of %q", errInvalidFrame, line)
	}

	// a timestamp of 4 hex digits may follow the data
	payload := line[5:]
	if len(payload) != 2*dlc && len(payload) != 2*dlc+4 {
		return frame{}, fmt.Errorf("%w: length of %q", errInvalidFrame, line)
	}

	data, err := hex.DecodeString(payload[:2*dlc])
	if err != nil {
		return frame{}, fmt.Errorf("%w: data of %q", errInvalidFrame, line)
	}

	return frame{id: uint16(id), data: data}, nil
}

var bitrateCodes = map[string]int{
	"10":   0,
	"20":   1,
	"50":   2,
	"100":  3,
	"125":  4,
	"250":  5,
	"500":  6,
	"800":  7,
	"1000": 8,
	"1M":   8,
}

// bitrateCommand returns the "Sn\r" setup command of a load# baudrate such as "500", "500K" or "1M".
func bitrateCommand(baudrate string) ([]byte, error) {
	key := strings.ToUpper(strings.TrimSpace(baudrate))
	if key != "1M" {
		key = strings.TrimSuffix(key, "K")
	}

	code, ok := bitrateCodes[key]
	if !ok {
		return nil, fmt.Errorf("unsupported bitrate %q", baudrate)
	}

	return []byte(fmt.Sprintf("S%d\r", code)), nil
}
