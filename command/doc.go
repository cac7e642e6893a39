// Package command parses the ASCII command lines accepted by the gateway.
//
// A command line starts with a fixed four letter tag which selects the command kind.
// Commands carrying arguments continue with a '#' delimiter followed by comma separated fields:
//
//	ssta#<nodeId>                       start node (nodeId 00 = broadcast)
//	ssto#<nodeId>                       stop node
//	srst#<nodeId>                       reset node
//	scan                                reset all nodes
//	wait#<seconds>                      sleep, decimal seconds
//	info#<nodeId>                       identity query
//	rsdo#<nodeId>,<index>,<subindex>    read object
//	wsdo#<nodeId>,<index>,<subindex>,<size>,<data>
//	load#<libraryPath>,<channel>,<baudrate>,<nodeId>,<nodeType>
//	help
//	quit
//
// Node ids, indexes, subindexes, sizes and data are hexadecimal. Every hexadecimal field accepts
// at most its declared width (2 digits for node ids, subindexes and sizes, 4 for indexes); wider
// values are rejected instead of truncated. The node id and node type of load# are decimal.
//
// Parse never returns a partially filled command: a line whose tag is known but whose fields do
// not match the grammar yields a *MalformedCommandError.
package command
