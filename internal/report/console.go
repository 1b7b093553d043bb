// internal/report/console.go
package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/signalnine/rpltrace/internal/protocol"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgWhite)
	warnColor   = color.New(color.FgYellow)
)

// PrintSummary writes a human-readable digest of a run
func PrintSummary(w io.Writer, job string, r *Report, stats protocol.Stats) {
	g := r.GlobalStats

	headerColor.Fprintf(w, "Run %s\n", job)
	if r.Date != "" {
		fmt.Fprintf(w, "  started %s, duration %s\n", r.Date, r.Duration)
	}

	row := func(label, value string) {
		labelColor.Fprintf(w, "  %-24s", label)
		fmt.Fprintln(w, value)
	}
	row("lines parsed", humanize.Comma(int64(stats.Lines)))
	row("packets sent", humanize.Comma(int64(g.PacketsSent)))
	row("packets received", humanize.Comma(int64(g.PacketsReceived)))
	row("pdr (%)", formatOpt(g.PDR, "%.2f"))
	row("latency (s)", formatOpt(g.Latency, "%.4f"))
	row("duty cycle (%)", formatOpt(g.DutyCycle, "%.2f"))
	row("channel utilization (%)", formatOpt(g.ChannelUtilization, "%.2f"))
	row("network formation (s)", formatOpt(g.NetworkFormationTime, "%.2f"))

	if b := r.Block("hops"); b != nil {
		row("topology nodes", humanize.Comma(int64(len(b.PerNode.X))))
	}

	if b := r.Block("frames-tx"); b != nil {
		var sent int
		for _, n := range b.PerNode.Y {
			if n != nil {
				sent += int(*n)
			}
		}
		row("tsch frames sent", humanize.Comma(int64(sent)))
	}

	skipped := stats.Malformed + stats.UnknownModule + stats.Unmatched
	if skipped > 0 {
		row("lines skipped", humanize.Comma(int64(skipped)))
	}
	if stats.CorrelationMisses > 0 {
		warnColor.Fprintf(w, "  %d responses matched no request\n", stats.CorrelationMisses)
	}
	if stats.ZeroTotal > 0 {
		warnColor.Fprintf(w, "  %d energest samples with a zero total\n", stats.ZeroTotal)
	}
	if stats.TopologyCycles > 0 {
		warnColor.Fprintf(w, "  %d topology entries dropped on parent cycles\n", stats.TopologyCycles)
	}
	if stats.DroppedFrames > 0 {
		warnColor.Fprintf(w, "  %d received frames from an unknown source\n", stats.DroppedFrames)
	}
}

func formatOpt(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}
