package command

// Kind identifies the command variant selected by the four letter tag.
type Kind int

const (
	Unknown Kind = iota
	StartNode
	StopNode
	ResetNode
	Scan
	Wait
	Info
	ReadObject
	WriteObject
	LoadConfig
	Quit
	Help
)

// TagLength is the length of every command tag.
const TagLength = 4

var kindByTag = map[string]Kind{
	"ssta": StartNode,
	"ssto": StopNode,
	"srst": ResetNode,
	"scan": Scan,
	"wait": Wait,
	"info": Info,
	"rsdo": ReadObject,
	"wsdo": WriteObject,
	"load": LoadConfig,
	"quit": Quit,
	"help": Help,
}

var tagByKind = func() map[Kind]string {
	m := make(map[Kind]string, len(kindByTag))
	for tag, kind := range kindByTag {
		m[kind] = tag
	}

	return m
}()

// KindOf returns the kind registered for tag, or Unknown.
func KindOf(tag string) Kind {
	if kind, ok := kindByTag[tag]; ok {
		return kind
	}

	return Unknown
}

// Tag returns the wire tag of the kind, or "" for Unknown.
func (k Kind) Tag() string {
	return tagByKind[k]
}

// String returns a readable name of the kind.
func (k Kind) String() string {
	switch k {
	case StartNode:
		return "StartNode"
	case StopNode:
		return "StopNode"
	case ResetNode:
		return "ResetNode"
	case Scan:
		return "Scan"
	case Wait:
		return "Wait"
	case Info:
		return "Info"
	case ReadObject:
		return "ReadObject"
	case WriteObject:
		return "WriteObject"
	case LoadConfig:
		return "LoadConfig"
	case Quit:
		return "Quit"
	case Help:
		return "Help"
	default:
		return "Unknown"
	}
}

// IsBusTargeted reports whether the kind needs an opened bus.
func (k Kind) IsBusTargeted() bool {
	switch k {
	case StartNode, StopNode, ResetNode, Scan, Info, ReadObject, WriteObject:
		return true
	default:
		return false
	}
}
