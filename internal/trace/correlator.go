// internal/trace/correlator.go
package trace

import (
	"github.com/signalnine/rpltrace/internal/protocol"
)

// Packet types correlated into delivery and latency
const (
	PacketRequest  = "request"
	PacketResponse = "response"
)

type requestKey struct {
	node int
	id   int
}

// Correlator pairs sent requests with their responses.
// Requests are keyed by (origin node, packet id); with byIDOnly set the
// origin is ignored and any node's response resolves the request.
type Correlator struct {
	byIDOnly bool
	requests []*protocol.PendingRequest
	open     map[requestKey][]*protocol.PendingRequest
	misses   int
}

// NewCorrelator creates an empty correlator
func NewCorrelator(byIDOnly bool) *Correlator {
	return &Correlator{
		byIDOnly: byIDOnly,
		open:     make(map[requestKey][]*protocol.PendingRequest),
	}
}

func (c *Correlator) key(node, id int) requestKey {
	if c.byIDOnly {
		return requestKey{id: id}
	}
	return requestKey{node: node, id: id}
}

// Send records a new pending request
func (c *Correlator) Send(ev protocol.Event) *protocol.PendingRequest {
	req := &protocol.PendingRequest{
		PacketID: ev.PacketID,
		Origin:   ev.Node,
		Dest:     ev.Peer,
		SendTime: ev.Timestamp,
	}
	c.requests = append(c.requests, req)

	k := c.key(ev.Node, ev.PacketID)
	c.open[k] = append(c.open[k], req)
	return req
}

// Receive resolves the oldest open request matching the response.
// Returns false and counts a miss when nothing is open for it.
func (c *Correlator) Receive(ev protocol.Event) (*protocol.PendingRequest, bool) {
	k := c.key(ev.Node, ev.PacketID)
	queue := c.open[k]
	if len(queue) == 0 {
		c.misses++
		return nil, false
	}

	req := queue[0]
	if len(queue) == 1 {
		delete(c.open, k)
	} else {
		c.open[k] = queue[1:]
	}

	latency := ev.Timestamp - req.SendTime
	req.Latency = &latency
	req.Resolved = true
	req.PDR = 100
	return req, true
}

// Requests returns every request seen, in send order
func (c *Correlator) Requests() []*protocol.PendingRequest {
	return c.requests
}

// Pending returns the number of requests still waiting for a response
func (c *Correlator) Pending() int {
	n := 0
	for _, queue := range c.open {
		n += len(queue)
	}
	return n
}

// Misses returns the number of responses that matched no open request
func (c *Correlator) Misses() int {
	return c.misses
}
