// internal/trace/pipeline.go
package trace

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/signalnine/rpltrace/internal/protocol"
)

// maxLineBytes bounds a single log line; radio traces can be long
const maxLineBytes = 1024 * 1024

// Options configures a parse pass
type Options struct {
	Format        Format
	CorrelateByID bool
	Logger        logrus.FieldLogger
}

// Key identifies the options that change what a parse pass produces.
// Cached results are only valid for the same key.
func (o Options) Key() string {
	correlate := "node"
	if o.CorrelateByID {
		correlate = "id"
	}
	return fmt.Sprintf("format=%s,correlate=%s", o.Format, correlate)
}

// Pipeline reconstructs events from one ordered log stream. It owns its
// correlator and topology; use one Pipeline per log file.
type Pipeline struct {
	log          logrus.FieldLogger
	parser       *Parser
	correlator   *Correlator
	topology     *Topology
	result       protocol.Result
	lastProgress float64
}

// New creates a pipeline
func New(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Pipeline{
		log:        logger,
		parser:     NewParser(opts.Format),
		correlator: NewCorrelator(opts.CorrelateByID),
		topology:   NewTopology(),
		result: protocol.Result{
			Messages: make(map[string][]protocol.MessageRecord),
		},
	}
}

// ParseFile runs a fresh pipeline over the log file at path
func ParseFile(ctx context.Context, path string, opts Options) (*protocol.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	p := New(opts)
	if err := p.Run(ctx, f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p.Result(), nil
}

// Run feeds every line of r, in order
func (p *Pipeline) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.Feed(scanner.Text())
	}
	return scanner.Err()
}

// Feed processes one raw line
func (p *Pipeline) Feed(raw string) {
	p.result.Stats.Lines++

	line, ok := ParseLine(raw)
	if !ok {
		// radio traces print frames without a module tag
		line, ok = ParseUntaggedLine(raw)
		if !ok || !IsFrame(line.Message) {
			p.result.Stats.Malformed++
			return
		}
		line.Module = ModuleTSCH.String()
	}

	if line.Timestamp-p.lastProgress >= 60 {
		p.log.WithField("minute", int(line.Timestamp/60)).Debug("Parse progress")
		p.lastProgress = line.Timestamp
	}

	ev, ok, err := p.parser.Dispatch(line)
	switch {
	case errors.Is(err, ErrUnknownModule):
		p.result.Stats.UnknownModule++
		return
	case errors.Is(err, ErrZeroTotal):
		p.result.Stats.ZeroTotal++
		p.log.WithFields(logrus.Fields{"node": line.NodeID, "time": line.Timestamp}).Debugf("Skipping energest sample: %v", err)
		return
	case errors.Is(err, ErrUnknownSource):
		p.result.Stats.DroppedFrames++
		return
	case err != nil:
		p.log.WithError(err).Warn("Parser error")
		return
	case !ok:
		p.result.Stats.Unmatched++
		return
	}

	p.apply(ev)
}

func (p *Pipeline) apply(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventSend:
		if ev.PacketType != PacketRequest {
			return
		}
		p.correlator.Send(ev)
		if p.result.NetworkFormationTime == nil {
			ts := ev.Timestamp
			p.result.NetworkFormationTime = &ts
		}

	case protocol.EventReceive:
		if ev.PacketType != PacketResponse {
			return
		}
		if _, ok := p.correlator.Receive(ev); !ok {
			p.log.WithFields(logrus.Fields{
				"node":      ev.Node,
				"packet_id": ev.PacketID,
				"time":      ev.Timestamp,
			}).Warn("Response without pending request")
		}

	case protocol.EventRankUpdate:
		p.result.Ranks = append(p.result.Ranks, protocol.RankRecord{
			Timestamp: ev.Timestamp,
			Node:      ev.Node,
			Rank:      ev.Rank,
			Trickle:   ev.Trickle,
			NbrCount:  ev.NbrCount,
		})

	case protocol.EventParentSwitch:
		p.result.Switches = append(p.result.Switches, protocol.SwitchRecord{
			Timestamp: ev.Timestamp,
			Node:      ev.Node,
			Parent:    ev.Parent,
		})

	case protocol.EventMessageSent:
		p.result.Messages[ev.Message] = append(p.result.Messages[ev.Message], protocol.MessageRecord{
			Timestamp: ev.Timestamp,
			Node:      ev.Node,
			Message:   ev.Message,
		})

	case protocol.EventRadioEnergy:
		p.result.Energy = append(p.result.Energy, protocol.EnergyRecord{
			Timestamp: ev.Timestamp,
			Node:      ev.Node,
			Metric:    ev.Metric,
			Value:     ev.Fraction,
		})

	case protocol.EventTopologyEdge:
		p.topology.AddEdge(ev.Child, ev.Parent)

	case protocol.EventTopologyEnd:
		records, err := p.topology.Finalize(ev.Timestamp)
		if err != nil {
			p.result.Stats.TopologyCycles += len(p.topology.Nodes()) - len(records)
			p.log.WithError(err).WithField("time", ev.Timestamp).Warn("Topology snapshot incomplete")
		}
		p.result.Topology = append(p.result.Topology, records...)

	case protocol.EventFrame:
		rec := protocol.FrameRecord{
			Timestamp: ev.Timestamp,
			Node:      ev.Node,
			ASN:       ev.ASN,
			Tx:        ev.Tx,
			Radio:     ev.Radio,
			Channel:   ev.Channel,
			RSSI:      ev.RSSI,
			EDR:       ev.EDR,
		}
		if ev.Tx {
			rec.Source = ev.Node
		} else {
			rec.Source = ev.Peer
			rec.Destination = ev.Node
		}
		p.result.Frames = append(p.result.Frames, rec)
	}
}

// Result returns the records collected so far
func (p *Pipeline) Result() *protocol.Result {
	res := p.result
	res.Packets = p.correlator.Requests()
	res.Stats.CorrelationMisses = p.correlator.Misses()
	return &res
}
