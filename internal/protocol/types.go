// internal/protocol/types.go
package protocol

// NoParent marks a node without a parent in the topology (the DODAG root)
const NoParent = -1

// LogLine is one classified simulator log line
type LogLine struct {
	Timestamp float64 `json:"timestamp"` // seconds since simulation start
	NodeID    int     `json:"node_id"`
	Level     string  `json:"level"`
	Module    string  `json:"module"`
	Message   string  `json:"message"`
}

// EventKind tags the Event union
type EventKind int

const (
	EventSend EventKind = iota + 1
	EventReceive
	EventRankUpdate
	EventParentSwitch
	EventMessageSent
	EventRadioEnergy
	EventTopologyEdge
	EventTopologyEnd
	EventFrame
)

var eventKindNames = map[EventKind]string{
	EventSend:         "send",
	EventReceive:      "receive",
	EventRankUpdate:   "rank",
	EventParentSwitch: "switch",
	EventMessageSent:  "sending",
	EventRadioEnergy:  "energy",
	EventTopologyEdge: "link",
	EventTopologyEnd:  "topology",
	EventFrame:        "frame",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Radio energy metric names
const (
	MetricChannelUtilization = "channel-utilization"
	MetricDutyCycle          = "duty-cycle"
)

// Event is a typed record extracted from a single log message.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp float64   `json:"timestamp"`
	Node      int       `json:"node"`

	// Send / Receive. Peer is the destination of a send or the source of a receive.
	PacketType string `json:"packet_type,omitempty"`
	PacketID   int    `json:"packet_id,omitempty"`
	Peer       int    `json:"peer,omitempty"`

	// RankUpdate
	Rank     int      `json:"rank,omitempty"`
	Trickle  *float64 `json:"trickle,omitempty"` // minutes
	NbrCount *int     `json:"nbr_count,omitempty"`

	// ParentSwitch and TopologyEdge
	Parent int `json:"parent,omitempty"`
	Child  int `json:"child,omitempty"`

	// MessageSent
	Message string `json:"message,omitempty"`

	// RadioEnergy, value in percent
	Metric   string  `json:"metric,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`

	// Frame. Peer is the link-layer source of a received frame.
	ASN     string `json:"asn,omitempty"`
	Tx      bool   `json:"tx,omitempty"`
	Radio   int    `json:"radio,omitempty"`
	Channel int    `json:"channel,omitempty"`
	RSSI    int    `json:"rssi,omitempty"`
	EDR     int    `json:"edr,omitempty"`
}

// PendingRequest is a sent request, resolved once its response is seen
type PendingRequest struct {
	PacketID int      `json:"packet_id"`
	Origin   int      `json:"origin"`
	Dest     int      `json:"dest"`
	SendTime float64  `json:"send_time"`
	Resolved bool     `json:"resolved"`
	Latency  *float64 `json:"latency,omitempty"` // seconds
	PDR      float64  `json:"pdr"`               // 0 or 100
}

// EnergyRecord is one Energest sample
type EnergyRecord struct {
	Timestamp float64 `json:"timestamp"`
	Node      int     `json:"node"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
}

// RankRecord is one RPL rank report
type RankRecord struct {
	Timestamp float64  `json:"timestamp"`
	Node      int      `json:"node"`
	Rank      int      `json:"rank"`
	Trickle   *float64 `json:"trickle,omitempty"`
	NbrCount  *int     `json:"nbr_count,omitempty"`
}

// SwitchRecord is one RPL parent switch
type SwitchRecord struct {
	Timestamp float64 `json:"timestamp"`
	Node      int     `json:"node"`
	Parent    int     `json:"parent"`
}

// MessageRecord is one RPL control message sent (DIS, DIO, DAO...)
type MessageRecord struct {
	Timestamp float64 `json:"timestamp"`
	Node      int     `json:"node"`
	Message   string  `json:"message"`
}

// TopologyRecord is a node's position in one topology snapshot
type TopologyRecord struct {
	Timestamp float64 `json:"timestamp"`
	Node      int     `json:"node"`
	Hops      int     `json:"hops"`
	Children  int     `json:"children"`
}

// FrameRecord is one TSCH frame sent or received on a radio interface.
// ASN is kept as printed and never interpreted.
type FrameRecord struct {
	Timestamp   float64 `json:"timestamp"`
	Node        int     `json:"node"`
	ASN         string  `json:"asn"`
	Tx          bool    `json:"tx"`
	Radio       int     `json:"radio"`
	Channel     int     `json:"channel"`
	Source      int     `json:"source"`
	Destination int     `json:"destination"` // 0 for broadcast transmissions
	RSSI        int     `json:"rssi"`
	EDR         int     `json:"edr"` // absolute value
}

// Stats counts what the parse pass saw and skipped
type Stats struct {
	Lines             int `json:"lines"`
	Malformed         int `json:"malformed"`
	UnknownModule     int `json:"unknown_module"`
	Unmatched         int `json:"unmatched"`
	CorrelationMisses int `json:"correlation_misses"`
	ZeroTotal         int `json:"zero_total"`
	TopologyCycles    int `json:"topology_cycles"`
	DroppedFrames     int `json:"dropped_frames"`
}

// Result is everything reconstructed from one log file
type Result struct {
	Packets  []*PendingRequest          `json:"packets"`
	Energy   []EnergyRecord             `json:"energy"`
	Ranks    []RankRecord               `json:"ranks"`
	Switches []SwitchRecord             `json:"switches"`
	Messages map[string][]MessageRecord `json:"messages"`
	Topology []TopologyRecord           `json:"topology"`
	Frames   []FrameRecord              `json:"frames,omitempty"`
	Stats    Stats                      `json:"stats"`

	// NetworkFormationTime is the timestamp of the first request sent, nil if none
	NetworkFormationTime *float64 `json:"network_formation_time,omitempty"`
}
