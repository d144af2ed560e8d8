package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// StageFunc is one unit of work in the graph. It receives a copy of the
// current state and returns a partial update; it never mutates shared state
// directly.
type StageFunc func(ctx context.Context, s State) (Update, error)

// Node is a named stage with its dependencies.
type Node struct {
	Name  string
	Needs []string
	Run   StageFunc
}

// Graph is a static DAG of stages. Nodes whose dependencies have all
// completed are scheduled exactly once; a node with multiple dependencies
// acts as a join barrier and fires only after the last of them finishes.
type Graph struct {
	nodes      map[string]Node
	dependents map[string][]string
}

// NewGraph validates the node set and builds the dependency index. It rejects
// duplicate names, unknown dependencies, cycles, and graphs with no entry
// node.
func NewGraph(nodes ...Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("workflow graph: no nodes")
	}

	byName := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n.Name == "" {
			return nil, fmt.Errorf("workflow graph: node with empty name")
		}
		if n.Run == nil {
			return nil, fmt.Errorf("workflow graph: node %q has no stage function", n.Name)
		}
		if _, ok := byName[n.Name]; ok {
			return nil, fmt.Errorf("workflow graph: duplicate node %q", n.Name)
		}
		byName[n.Name] = n
	}

	dependents := make(map[string][]string, len(nodes))
	entries := 0
	for _, n := range nodes {
		if len(n.Needs) == 0 {
			entries++
		}
		for _, dep := range n.Needs {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("workflow graph: node %q needs unknown node %q", n.Name, dep)
			}
			dependents[dep] = append(dependents[dep], n.Name)
		}
	}
	if entries == 0 {
		return nil, fmt.Errorf("workflow graph: no entry node")
	}

	// Kahn's algorithm to reject cycles.
	remaining := make(map[string]int, len(nodes))
	for _, n := range nodes {
		remaining[n.Name] = len(n.Needs)
	}
	queue := make([]string, 0, len(nodes))
	for name, count := range remaining {
		if count == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[name] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(nodes) {
		return nil, fmt.Errorf("workflow graph: cycle detected")
	}

	return &Graph{nodes: byName, dependents: dependents}, nil
}

// Run executes the graph to completion, merging each stage's update into the
// shared state before scheduling dependents. Independent nodes run
// concurrently. The first stage error cancels the remaining stages and is
// returned; the state is then incomplete and must be discarded.
func (g *Graph) Run(ctx context.Context, state *State) error {
	grp, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	remaining := make(map[string]int, len(g.nodes))
	var entries []string
	for name, n := range g.nodes {
		remaining[name] = len(n.Needs)
		if len(n.Needs) == 0 {
			entries = append(entries, name)
		}
	}

	var schedule func(name string)
	schedule = func(name string) {
		node := g.nodes[name]
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			snapshot := *state
			mu.Unlock()

			update, err := node.Run(gctx, snapshot)
			if err != nil {
				return fmt.Errorf("stage %s: %w", node.Name, err)
			}

			mu.Lock()
			state.apply(update)
			var next []string
			for _, dep := range g.dependents[name] {
				remaining[dep]--
				if remaining[dep] == 0 {
					next = append(next, dep)
				}
			}
			mu.Unlock()

			for _, n := range next {
				schedule(n)
			}
			return nil
		})
	}

	for _, name := range entries {
		schedule(name)
	}

	return grp.Wait()
}
