// internal/report/report.go
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/rpltrace/internal/protocol"
	"github.com/signalnine/rpltrace/internal/run"
)

// RPL control messages reported, with their report keys and labels
var rplMessages = []struct {
	message string
	key     string
	name    string
}{
	{"DIS", "rpl-dis", "RPL DIS sent (#)"},
	{"unicast-DIO", "rpl-udio", "RPL uDIO sent (#)"},
	{"multicast-DIO", "rpl-mdio", "RPL mDIO sent (#)"},
	{"DAO", "rpl-dao", "RPL DAO sent (#)"},
	{"DAO-ACK", "rpl-daoack", "RPL DAO-ACK sent (#)"},
}

// Options controls report generation
type Options struct {
	Setup        string
	Commit       string
	TrimInflight int
	Bucket       time.Duration
}

// GlobalStats are the run-wide figures of the report header
type GlobalStats struct {
	PDR                  *float64 `yaml:"pdr"`
	LossRate             *float64 `yaml:"loss-rate"`
	PacketsSent          int      `yaml:"packets-sent"`
	PacketsReceived      int      `yaml:"packets-received"`
	Latency              *float64 `yaml:"latency"`
	DutyCycle            *float64 `yaml:"duty-cycle"`
	ChannelUtilization   *float64 `yaml:"channel-utilization"`
	NetworkFormationTime *float64 `yaml:"network-formation-time"`
}

// StatBlock is one metric of the stats section
type StatBlock struct {
	Name    string `yaml:"name"`
	PerNode XY     `yaml:"per-node"`
	PerTime XY     `yaml:"per-time"`
}

// Report is the YAML front matter of a run page
type Report struct {
	Date        string      `yaml:"date"`
	Duration    string      `yaml:"duration"`
	Setup       string      `yaml:"setup,omitempty"`
	Commit      string      `yaml:"commit,omitempty"`
	GlobalStats GlobalStats `yaml:"global-stats"`
	Stats       yaml.Node   `yaml:"stats"`

	blocks map[string]*StatBlock
	order  []string
}

// Block returns the stat block stored under key, nil if the metric had no data
func (r *Report) Block(key string) *StatBlock {
	return r.blocks[key]
}

// Keys returns the stat block keys in report order
func (r *Report) Keys() []string {
	return r.order
}

// TrimInflight drops the last n requests, which may still have been in
// flight when the test stopped
func TrimInflight(packets []*protocol.PendingRequest, n int) []*protocol.PendingRequest {
	if n <= 0 {
		return packets
	}
	if n >= len(packets) {
		return nil
	}
	return packets[:len(packets)-n]
}

// Build computes the report of a parsed run
func Build(meta *run.Meta, res *protocol.Result, opts Options) (*Report, error) {
	if opts.Bucket <= 0 {
		opts.Bucket = 2 * time.Minute
	}
	r := &Report{
		Date:     meta.Started,
		Duration: meta.Duration,
		Setup:    opts.Setup,
		Commit:   opts.Commit,
		blocks:   make(map[string]*StatBlock),
	}

	packets := TrimInflight(res.Packets, opts.TrimInflight)
	r.GlobalStats = globalStats(packets, res)

	var pdr, latency []Sample
	for _, p := range packets {
		lat := math.NaN()
		if p.Latency != nil {
			lat = *p.Latency
		}
		pdr = append(pdr, Sample{Timestamp: p.SendTime, Node: p.Origin, Value: p.PDR})
		latency = append(latency, Sample{Timestamp: p.SendTime, Node: p.Origin, Value: lat})
	}
	r.add(opts.Bucket, "pdr", "End-to-end PDR (%)", pdr, Mean)
	r.add(opts.Bucket, "latency", "Round-trip latency (s)", latency, Mean)

	var duty, channel []Sample
	for _, e := range res.Energy {
		smp := Sample{Timestamp: e.Timestamp, Node: e.Node, Value: e.Value}
		switch e.Metric {
		case protocol.MetricDutyCycle:
			duty = append(duty, smp)
		case protocol.MetricChannelUtilization:
			channel = append(channel, smp)
		}
	}
	r.add(opts.Bucket, "duty-cycle", "Radio duty cycle (%)", duty, Mean)
	r.add(opts.Bucket, "channel-utilization", "Channel utilization (%)", channel, Mean)

	var ranks, trickle []Sample
	for _, rk := range res.Ranks {
		ranks = append(ranks, Sample{Timestamp: rk.Timestamp, Node: rk.Node, Value: float64(rk.Rank)})
		if rk.Trickle != nil {
			trickle = append(trickle, Sample{Timestamp: rk.Timestamp, Node: rk.Node, Value: *rk.Trickle})
		}
	}
	r.add(opts.Bucket, "rank", "RPL rank (ETX-128)", ranks, Mean)

	var switches []Sample
	for _, s := range res.Switches {
		switches = append(switches, Sample{Timestamp: s.Timestamp, Node: s.Node, Value: float64(s.Parent)})
	}
	r.add(opts.Bucket, "pswitch", "RPL parent switches (#)", switches, Count)
	r.add(opts.Bucket, "trickle", "RPL Trickle period (min)", trickle, Mean)

	for _, m := range rplMessages {
		var sent []Sample
		for _, rec := range res.Messages[m.message] {
			sent = append(sent, Sample{Timestamp: rec.Timestamp, Node: rec.Node, Value: 1})
		}
		r.add(opts.Bucket, m.key, m.name, sent, Count)
	}

	var hops, children []Sample
	for _, t := range res.Topology {
		hops = append(hops, Sample{Timestamp: t.Timestamp, Node: t.Node, Value: float64(t.Hops)})
		children = append(children, Sample{Timestamp: t.Timestamp, Node: t.Node, Value: float64(t.Children)})
	}
	r.add(opts.Bucket, "hops", "RPL hop count (#)", hops, Mean)
	r.add(opts.Bucket, "children", "RPL children count (#)", children, Mean)

	var txFrames, rssi, edr []Sample
	for _, f := range res.Frames {
		if f.Tx {
			txFrames = append(txFrames, Sample{Timestamp: f.Timestamp, Node: f.Node, Value: 1})
			continue
		}
		rssi = append(rssi, Sample{Timestamp: f.Timestamp, Node: f.Node, Value: float64(f.RSSI)})
		edr = append(edr, Sample{Timestamp: f.Timestamp, Node: f.Node, Value: float64(f.EDR)})
	}
	r.add(opts.Bucket, "frames-tx", "TSCH frames sent (#)", txFrames, Count)
	r.add(opts.Bucket, "rssi", "TSCH RSSI of received frames (dBm)", rssi, Mean)
	r.add(opts.Bucket, "edr", "TSCH EDR of received frames", edr, Mean)

	if err := r.encodeStats(); err != nil {
		return nil, err
	}
	return r, nil
}

func globalStats(packets []*protocol.PendingRequest, res *protocol.Result) GlobalStats {
	g := GlobalStats{PacketsSent: len(packets), NetworkFormationTime: res.NetworkFormationTime}

	var pdr, latency, duty, channel []float64
	for _, p := range packets {
		pdr = append(pdr, p.PDR)
		if p.Resolved {
			g.PacketsReceived++
		}
		if p.Latency != nil {
			latency = append(latency, *p.Latency)
		}
	}
	for _, e := range res.Energy {
		switch e.Metric {
		case protocol.MetricDutyCycle:
			duty = append(duty, e.Value)
		case protocol.MetricChannelUtilization:
			channel = append(channel, e.Value)
		}
	}

	g.PDR = MeanOf(pdr)
	if g.PDR != nil {
		loss := 1 - *g.PDR/100
		g.LossRate = &loss
	}
	g.Latency = MeanOf(latency)
	g.DutyCycle = MeanOf(duty)
	g.ChannelUtilization = MeanOf(channel)
	return g
}

func (r *Report) add(bucket time.Duration, key, name string, samples []Sample, agg Agg) {
	if len(samples) == 0 {
		return
	}
	series := Aggregate(samples, agg, bucket)
	r.blocks[key] = &StatBlock{Name: name, PerNode: series.PerNode, PerTime: series.PerTime}
	r.order = append(r.order, key)
}

// encodeStats renders the blocks as an ordered YAML mapping
func (r *Report) encodeStats() error {
	r.Stats = yaml.Node{Kind: yaml.MappingNode}
	for _, key := range r.order {
		var value yaml.Node
		if err := value.Encode(r.blocks[key]); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		r.Stats.Content = append(r.Stats.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: key},
			&value,
		)
	}
	return nil
}

// Write renders the report as a page with YAML front matter
func (r *Report) Write(w io.Writer) error {
	body, err := yaml.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "---\n%s---\n\n{%% include run.md %%}\n", body); err != nil {
		return err
	}
	return nil
}

// WriteFile writes the report to <dir>/<job>.md and returns the path
func (r *Report) WriteFile(dir, job string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, job+".md")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := r.Write(f); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
