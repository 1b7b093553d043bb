// internal/trace/parsers.go
package trace

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/signalnine/rpltrace/internal/protocol"
)

var (
	// ErrUnknownModule is returned by Dispatch for module tags without a parser
	ErrUnknownModule = errors.New("unknown module")
	// ErrZeroTotal rejects an Energest ratio whose denominator is zero
	ErrZeroTotal = errors.New("energest total is zero")
	// ErrUnknownSource rejects a received frame whose link-layer source is not a node
	ErrUnknownSource = errors.New("frame from unknown source")
)

// Module is the log module tag a parser is registered for
type Module int

const (
	ModuleUnknown Module = iota
	ModuleApp
	ModuleEnergest
	ModuleRPL
	ModuleTSCH
)

var moduleTags = map[string]Module{
	"App":      ModuleApp,
	"Energest": ModuleEnergest,
	"RPL":      ModuleRPL,
	"TSCH":     ModuleTSCH,
}

// ModuleOf maps the tag found between brackets to a Module
func ModuleOf(tag string) Module {
	return moduleTags[tag]
}

func (m Module) String() string {
	for tag, mod := range moduleTags {
		if mod == m {
			return tag
		}
	}
	return "unknown"
}

// Format selects which rank-report fields a log carries
type Format int

const (
	// FormatAuto accepts rank reports with or without trickle and neighbor fields
	FormatAuto Format = iota
	// FormatFull requires "dioint" and "nbr count" in rank reports
	FormatFull
	// FormatBasic reads the rank only
	FormatBasic
)

// ParseFormat parses a config value ("auto", "full", "basic")
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return FormatAuto, nil
	case "full":
		return FormatFull, nil
	case "basic":
		return FormatBasic, nil
	}
	return FormatAuto, fmt.Errorf("unknown log format %q", s)
}

func (f Format) String() string {
	switch f {
	case FormatFull:
		return "full"
	case FormatBasic:
		return "basic"
	}
	return "auto"
}

// Node references are plain ids or carry a link-layer prefix such as "6G-".
const nodeRef = `(?:\S*?-)?(\d+)`

var (
	sendRe = regexp.MustCompile(`^[Ss]ending (.+?) (\d+) to ` + nodeRef)
	recvRe = regexp.MustCompile(`^[Rr]eceived (.+?) (\d+) from ` + nodeRef)

	radioTxRe    = regexp.MustCompile(`^Radio Tx\s*:\s*(\d+)/\s*(\d+)`)
	radioTotalRe = regexp.MustCompile(`^Radio total\s*:\s*(\d+)/\s*(\d+)`)

	rankRe      = regexp.MustCompile(`^nbr: own state\b.*?\srank (\d+)(?:.*?dioint (\d+))?(?:.*?nbr count (\d+))?`)
	switchRe    = regexp.MustCompile(`^parent switch: .*? -> .*?-(\d+)$`)
	sendingRe   = regexp.MustCompile(`^sending a (.+?) `)
	linkRe      = regexp.MustCompile(`^links: ` + nodeRef + `\s*to ` + nodeRef)
	linkRootRe  = regexp.MustCompile(`^links: ` + nodeRef + `\s*\(DODAG root\)`)
	linksDoneRe = regexp.MustCompile(`^links: end of list`)
)

// parseFunc turns a message into an event. ok is false when no pattern matches.
type parseFunc func(msg string) (ev protocol.Event, ok bool, err error)

// Parser dispatches classified lines to the parser registered for their module
type Parser struct {
	format Format
	table  map[Module]parseFunc
}

// NewParser creates a parser for the given log format
func NewParser(format Format) *Parser {
	p := &Parser{format: format}
	p.table = map[Module]parseFunc{
		ModuleApp:      ParseApp,
		ModuleEnergest: ParseEnergest,
		ModuleRPL:      p.ParseRPL,
		ModuleTSCH:     ParseFrame,
	}
	return p
}

// Dispatch parses line.Message with the parser of line.Module and stamps the
// event with the line's timestamp and node id.
func (p *Parser) Dispatch(line protocol.LogLine) (protocol.Event, bool, error) {
	parse, found := p.table[ModuleOf(line.Module)]
	if !found {
		return protocol.Event{}, false, fmt.Errorf("%w: %q", ErrUnknownModule, line.Module)
	}

	ev, ok, err := parse(line.Message)
	if err != nil || !ok {
		return protocol.Event{}, false, err
	}
	ev.Timestamp = line.Timestamp
	ev.Node = line.NodeID
	return ev, true, nil
}

// ParseApp recognizes request/response traffic of the application
func ParseApp(msg string) (protocol.Event, bool, error) {
	if m := sendRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{
			Kind:       protocol.EventSend,
			PacketType: m[1],
			PacketID:   atoi(m[2]),
			Peer:       atoi(m[3]),
		}, true, nil
	}
	if m := recvRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{
			Kind:       protocol.EventReceive,
			PacketType: m[1],
			PacketID:   atoi(m[2]),
			Peer:       atoi(m[3]),
		}, true, nil
	}
	return protocol.Event{}, false, nil
}

// ParseEnergest converts radio counters to percentages of the total time
func ParseEnergest(msg string) (protocol.Event, bool, error) {
	metric := ""
	m := radioTxRe.FindStringSubmatch(msg)
	if m != nil {
		metric = protocol.MetricChannelUtilization
	} else if m = radioTotalRe.FindStringSubmatch(msg); m != nil {
		metric = protocol.MetricDutyCycle
	} else {
		return protocol.Event{}, false, nil
	}

	part, _ := strconv.ParseFloat(m[1], 64)
	total, _ := strconv.ParseFloat(m[2], 64)
	if total == 0 {
		return protocol.Event{}, false, fmt.Errorf("%s: %w", metric, ErrZeroTotal)
	}

	return protocol.Event{
		Kind:     protocol.EventRadioEnergy,
		Metric:   metric,
		Fraction: 100 * part / total,
	}, true, nil
}

// ParseRPL recognizes rank reports, parent switches, control messages and
// the periodic link dump of the root.
func (p *Parser) ParseRPL(msg string) (protocol.Event, bool, error) {
	if m := sendingRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{Kind: protocol.EventMessageSent, Message: m[1]}, true, nil
	}
	if m := rankRe.FindStringSubmatch(msg); m != nil {
		return p.rankEvent(m)
	}
	if m := switchRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{Kind: protocol.EventParentSwitch, Parent: atoi(m[1])}, true, nil
	}
	if m := linkRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{Kind: protocol.EventTopologyEdge, Child: atoi(m[1]), Parent: atoi(m[2])}, true, nil
	}
	if m := linkRootRe.FindStringSubmatch(msg); m != nil {
		return protocol.Event{Kind: protocol.EventTopologyEdge, Child: atoi(m[1]), Parent: protocol.NoParent}, true, nil
	}
	if linksDoneRe.MatchString(msg) {
		return protocol.Event{Kind: protocol.EventTopologyEnd}, true, nil
	}
	return protocol.Event{}, false, nil
}

func (p *Parser) rankEvent(m []string) (protocol.Event, bool, error) {
	ev := protocol.Event{Kind: protocol.EventRankUpdate, Rank: atoi(m[1])}

	switch p.format {
	case FormatBasic:
		return ev, true, nil
	case FormatFull:
		if m[2] == "" || m[3] == "" {
			return protocol.Event{}, false, nil
		}
	}

	if m[2] != "" {
		trickle := math.Pow(2, float64(atoi(m[2]))) / (60 * 1000.)
		ev.Trickle = &trickle
	}
	if m[3] != "" {
		nbr := atoi(m[3])
		ev.NbrCount = &nbr
	}
	return ev, true, nil
}

// atoi is only used on \d+ groups
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
