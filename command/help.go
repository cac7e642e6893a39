package command

import "strings"

// HelpMenu is the full description of the command set.
const HelpMenu = `   MANDATORY COMMAND (must be the first command):
     load#CanLibraryPath,channel,baudrate,nodeid,type (0:slave, 1:master)

   NETWORK: (if nodeid=0x00 : broadcast)
     ssta#nodeid : Start a node
     ssto#nodeid : Stop a node
     srst#nodeid : Reset a node
     scan : Reset all nodes and print message when bootup
     wait#seconds : Sleep for n seconds

   SDO: (size in bytes)
     info#nodeid
     rsdo#nodeid,index,subindex : read sdo
        ex : rsdo#42,1018,01
     wsdo#nodeid,index,subindex,size,data : write sdo
        ex : wsdo#42,6200,01,01,FF

   Note: All numbers are hex, except load# node id and type

     help : Display this menu
     quit : Quit application
`

var helpOrder = []Kind{LoadConfig, StartNode, StopNode, ResetNode, Scan, Wait, Info, ReadObject, WriteObject, Help, Quit}

// HelpSummary returns the one-line list of command tags.
func HelpSummary() string {
	tags := make([]string, 0, len(helpOrder))
	for _, k := range helpOrder {
		tags = append(tags, k.Tag())
	}

	return "commands: " + strings.Join(tags, " ")
}
