// internal/trace/line.go
package trace

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/signalnine/rpltrace/internal/protocol"
)

var (
	// <time>\tID:<node>\t[<level>:<module>] <message>
	lineRe = regexp.MustCompile(`^\s*([.\d]+)\tID:(\d+)\t\[(.*?):(.*?)\](.*)$`)
	// <time>\tID:<node>\t<message>, as printed by radio traces
	untaggedRe = regexp.MustCompile(`^\s*([.\d]+)\tID:(\d+)\t(.*)$`)
)

// ParseLine classifies one raw log line.
// Returns false if the line does not follow the simulator log grammar.
func ParseLine(raw string) (protocol.LogLine, bool) {
	matches := lineRe.FindStringSubmatch(strings.TrimRight(raw, "\r\n"))
	if len(matches) < 6 {
		return protocol.LogLine{}, false
	}

	line, ok := header(matches[1], matches[2])
	if !ok {
		return protocol.LogLine{}, false
	}
	line.Level = strings.TrimSpace(matches[3])
	line.Module = strings.TrimSpace(matches[4])
	line.Message = strings.TrimSpace(matches[5])
	return line, true
}

// ParseUntaggedLine splits a line without a [level:module] tag.
// Level and Module are left empty.
func ParseUntaggedLine(raw string) (protocol.LogLine, bool) {
	matches := untaggedRe.FindStringSubmatch(strings.TrimRight(raw, "\r\n"))
	if len(matches) < 4 {
		return protocol.LogLine{}, false
	}

	line, ok := header(matches[1], matches[2])
	if !ok {
		return protocol.LogLine{}, false
	}
	line.Message = strings.TrimSpace(matches[3])
	return line, true
}

func header(ts, node string) (protocol.LogLine, bool) {
	t, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return protocol.LogLine{}, false // e.g. "1.2.3"
	}
	id, err := strconv.Atoi(node)
	if err != nil {
		return protocol.LogLine{}, false
	}
	return protocol.LogLine{Timestamp: t, NodeID: id}, true
}
