package bus

import "fmt"

// AbortCode is an SDO abort code.
type AbortCode uint32

const (
	AbortToggleBit             AbortCode = 0x05030000
	AbortTimeout               AbortCode = 0x05040000
	AbortCommandSpecifier      AbortCode = 0x05040001
	AbortOutOfMemory           AbortCode = 0x05040005
	AbortUnsupportedAccess     AbortCode = 0x06010000
	AbortWriteOnly             AbortCode = 0x06010001
	AbortReadOnly              AbortCode = 0x06010002
	AbortObjectNotFound        AbortCode = 0x06020000
	AbortNotMappable           AbortCode = 0x06040041
	AbortParamIncompatible     AbortCode = 0x06040043
	AbortHardware              AbortCode = 0x06060000
	AbortLengthMismatch        AbortCode = 0x06070010
	AbortLengthTooHigh         AbortCode = 0x06070012
	AbortLengthTooLow          AbortCode = 0x06070013
	AbortSubIndexNotFound      AbortCode = 0x06090011
	AbortInvalidValue          AbortCode = 0x06090030
	AbortGeneral               AbortCode = 0x08000000
	AbortDataTransfer          AbortCode = 0x08000020
	AbortDataTransferLocal     AbortCode = 0x08000021
	AbortDataTransferDeviceSta AbortCode = 0x08000022
)

var abortDescriptions = map[AbortCode]string{
	AbortToggleBit:             "toggle bit not alternated",
	AbortTimeout:               "SDO protocol timed out",
	AbortCommandSpecifier:      "client/server command specifier not valid or unknown",
	AbortOutOfMemory:           "out of memory",
	AbortUnsupportedAccess:     "unsupported access to an object",
	AbortWriteOnly:             "attempt to read a write only object",
	AbortReadOnly:              "attempt to write a read only object",
	AbortObjectNotFound:        "object does not exist in the object dictionary",
	AbortNotMappable:           "object cannot be mapped to the PDO",
	AbortParamIncompatible:     "general parameter incompatibility reason",
	AbortHardware:              "access failed due to a hardware error",
	AbortLengthMismatch:        "data type does not match, length of service parameter does not match",
	AbortLengthTooHigh:         "data type does not match, length of service parameter too high",
	AbortLengthTooLow:          "data type does not match, length of service parameter too low",
	AbortSubIndexNotFound:      "sub-index does not exist",
	AbortInvalidValue:          "invalid value for parameter",
	AbortGeneral:               "general error",
	AbortDataTransfer:          "data cannot be transferred or stored to the application",
	AbortDataTransferLocal:     "data cannot be transferred or stored to the application because of local control",
	AbortDataTransferDeviceSta: "data cannot be transferred or stored to the application because of the present device state",
}

func (c AbortCode) String() string {
	if desc, ok := abortDescriptions[c]; ok {
		return fmt.Sprintf("0x%08x (%s)", uint32(c), desc)
	}

	return fmt.Sprintf("0x%08x", uint32(c))
}
