// internal/trace/topology.go
package trace

import (
	"errors"
	"fmt"
	"sort"

	"github.com/signalnine/rpltrace/internal/protocol"
)

// CycleError reports a node whose parent chain never reaches a root
type CycleError struct {
	Node int
	Path []int
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("topology: parent chain of node %d loops: %v", e.Node, e.Path)
}

// Topology is the child -> parent graph rebuilt from the root's link dumps
type Topology struct {
	parents map[int]int
}

// NewTopology creates an empty topology
func NewTopology() *Topology {
	return &Topology{parents: make(map[int]int)}
}

// AddEdge sets the parent of child. Both nodes become known; a parent seen
// for the first time has no parent of its own. parent may be NoParent.
func (t *Topology) AddEdge(child, parent int) {
	if parent != protocol.NoParent {
		if _, known := t.parents[parent]; !known {
			t.parents[parent] = protocol.NoParent
		}
	}
	t.parents[child] = parent
}

// Parent returns the parent of node and whether node is known
func (t *Topology) Parent(node int) (int, bool) {
	p, ok := t.parents[node]
	return p, ok
}

// Nodes returns every known node in ascending order
func (t *Topology) Nodes() []int {
	nodes := make([]int, 0, len(t.parents))
	for n := range t.parents {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	return nodes
}

// Hops walks parent pointers from node to its root. The root is at 0 hops.
func (t *Topology) Hops(node int) (int, error) {
	visited := map[int]bool{node: true}
	path := []int{node}
	hops := 0
	for {
		parent, known := t.parents[node]
		if !known || parent == protocol.NoParent {
			return hops, nil
		}
		if visited[parent] {
			return 0, &CycleError{Node: path[0], Path: append(path, parent)}
		}
		visited[parent] = true
		path = append(path, parent)
		node = parent
		hops++
	}
}

// Children counts the nodes whose parent is node
func (t *Topology) Children(node int) int {
	n := 0
	for _, parent := range t.parents {
		if parent == node {
			n++
		}
	}
	return n
}

// Finalize takes a snapshot of hop and child counts for every known node,
// stamped with ts. Nodes caught in a parent cycle are left out of the
// snapshot and reported in the returned error.
func (t *Topology) Finalize(ts float64) ([]protocol.TopologyRecord, error) {
	children := make(map[int]int, len(t.parents))
	for _, parent := range t.parents {
		if parent != protocol.NoParent {
			children[parent]++
		}
	}

	var records []protocol.TopologyRecord
	var errs []error
	for _, node := range t.Nodes() {
		hops, err := t.Hops(node)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, protocol.TopologyRecord{
			Timestamp: ts,
			Node:      node,
			Hops:      hops,
			Children:  children[node],
		})
	}
	return records, errors.Join(errs...)
}
