// Package dag tracks the stage dependency graph of a pipeline run.
//
// Construction order already makes forward references impossible (a
// stage can only depend on handles that exist), so the graph is
// bookkeeping: it records names and edges for the composer, rejects
// edges to unknown stages, and offers a cycle check as a guard against
// composer bugs before the master script is written.
package dag

import (
	"fmt"
	"sort"
	"sync"
)

type node struct {
	id         string
	deps       map[string]*node
	dependents map[string]*node
}

// Graph is a directed acyclic graph of stage names.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

// New returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode registers a stage name. Adding an existing name is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
}

// AddEdge records that toID depends on fromID. It fails when either
// node is unknown or the edge would be self-referential.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("stage %q cannot depend on itself", fromID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("unknown dependency stage %q", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("unknown stage %q", toID)
	}

	to.deps[fromID] = from
	from.dependents[toID] = to
	return nil
}

// Dependencies returns the sorted stage names the given stage depends
// on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", id)
	}
	deps := make([]string, 0, len(n.deps))
	for depID := range n.deps {
		deps = append(deps, depID)
	}
	sort.Strings(deps)
	return deps, nil
}

// DetectCycles returns an error naming a stage involved in a cycle, or
// nil when the graph is acyclic.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	done := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if done[n.id] {
			return nil
		}
		if onStack[n.id] {
			return fmt.Errorf("cycle detected involving stage %q", n.id)
		}
		onStack[n.id] = true
		for _, dep := range n.deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		delete(onStack, n.id)
		done[n.id] = true
		return nil
	}

	for _, n := range g.nodes {
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}
