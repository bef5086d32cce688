// Package dag orders pipeline steps by their data dependencies.
// It supports cycle detection and a stable topological sort that keeps
// declaration order among independent steps.
package dag

import (
	"fmt"
	"strings"
)

// Node is a vertex of the graph.
type Node[T any] struct {
	// ID is the unique identifier (step name)
	ID string
	// Data holds the step
	Data T
}

// Graph is a directed graph of steps. Edges point from a dependency to the
// step that consumes it.
type Graph[T any] struct {
	order    []string
	nodes    map[string]*Node[T]
	children map[string][]string
	parents  map[string][]string
}

// NewGraph creates a new empty graph.
func NewGraph[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:    make(map[string]*Node[T]),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a node. Adding an existing ID is an error.
func (g *Graph[T]) AddNode(id string, data T) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("duplicate node %q", id)
	}
	g.nodes[id] = &Node[T]{ID: id, Data: data}
	g.order = append(g.order, id)
	return nil
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
func (g *Graph[T]) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}
	if parentID == childID {
		return fmt.Errorf("self-loop on node %q", parentID)
	}
	for _, c := range g.children[parentID] {
		if c == childID {
			return nil
		}
	}
	g.children[parentID] = append(g.children[parentID], childID)
	g.parents[childID] = append(g.parents[childID], parentID)
	return nil
}

// Node returns the node with the given ID.
func (g *Graph[T]) Node(id string) (*Node[T], bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the direct dependencies of id.
func (g *Graph[T]) Parents(id string) []string {
	return g.parents[id]
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int {
	return len(g.nodes)
}

// TopologicalSort returns nodes with dependencies before dependents. Among
// nodes that are ready at the same time, the one added first comes first.
func (g *Graph[T]) TopologicalSort() ([]*Node[T], error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}

	done := make(map[string]bool, len(g.nodes))
	result := make([]*Node[T], 0, len(g.nodes))
	for len(result) < len(g.order) {
		progressed := false
		for _, id := range g.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			result = append(result, g.nodes[id])
			for _, c := range g.children[id] {
				indegree[c]--
			}
			progressed = true
			// restart so earlier-declared nodes unlocked by id go first
			break
		}
		if !progressed {
			return nil, fmt.Errorf("cycle detected: %s", strings.Join(g.cycle(done), " -> "))
		}
	}
	return result, nil
}

// cycle returns one cycle among the nodes not yet emitted.
func (g *Graph[T]) cycle(done map[string]bool) []string {
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[string]int)
	var stack []string
	var found []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		state[id] = active
		stack = append(stack, id)
		for _, c := range g.children[id] {
			if done[c] {
				continue
			}
			switch state[c] {
			case active:
				for i, s := range stack {
					if s == c {
						found = append(append([]string{}, stack[i:]...), c)
						return true
					}
				}
			case unvisited:
				if dfs(c) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = finished
		return false
	}

	for _, id := range g.order {
		if !done[id] && state[id] == unvisited && dfs(id) {
			return found
		}
	}
	return nil
}
