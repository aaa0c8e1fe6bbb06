package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Executor is one typed node: a small function reading and mutating the
// shared session value threaded through the graph. The session is exclusively
// owned by the single in-flight run; nodes never alias it across goroutines.
type Executor[S any] func(ctx context.Context, session *S) error

// Edge connects two nodes. A nil predicate makes the edge unconditional.
type Edge[S any] struct {
	To   string
	When func(session *S) bool
}

// Graph is a directed graph of named executors with ordered, optionally
// guarded edges. At each node the outgoing edges are evaluated in declared
// order and the first whose predicate holds (or the unconditional edge) is
// followed. A graph with loop-back edges cannot be proven acyclic, so Run
// enforces a hard step budget as the termination backstop.
type Graph[S any] struct {
	nodes    map[string]Executor[S]
	edges    map[string][]Edge[S]
	start    string
	maxSteps int
}

// New creates an empty graph starting at the named node.
func New[S any](start string) *Graph[S] {
	return &Graph[S]{
		nodes:    make(map[string]Executor[S]),
		edges:    make(map[string][]Edge[S]),
		start:    start,
		maxSteps: 64,
	}
}

// AddNode registers a named executor.
func (g *Graph[S]) AddNode(name string, fn Executor[S]) *Graph[S] {
	g.nodes[name] = fn
	return g
}

// AddEdge declares an unconditional edge from → to.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.edges[from] = append(g.edges[from], Edge[S]{To: to})
	return g
}

// AddConditionalEdge declares a guarded edge from → to, evaluated in the
// order edges were declared.
func (g *Graph[S]) AddConditionalEdge(from, to string, when func(session *S) bool) *Graph[S] {
	g.edges[from] = append(g.edges[from], Edge[S]{To: to, When: when})
	return g
}

// SetMaxSteps overrides the step budget backstop.
func (g *Graph[S]) SetMaxSteps(n int) *Graph[S] {
	g.maxSteps = n
	return g
}

// Validate checks that every edge endpoint and the start node exist.
func (g *Graph[S]) Validate() error {
	if _, ok := g.nodes[g.start]; !ok {
		return fmt.Errorf("start node %q not registered", g.start)
	}
	for from, edges := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("edge source %q not registered", from)
		}
		for _, e := range edges {
			if _, ok := g.nodes[e.To]; !ok {
				return fmt.Errorf("edge target %q (from %q) not registered", e.To, from)
			}
		}
	}
	return nil
}

// Run executes the graph once for session: single-pass per external event.
// Execution follows edges until a node with no matching outgoing edge is
// reached. Node errors and context cancellation abort the run.
func (g *Graph[S]) Run(ctx context.Context, session *S) error {
	if err := g.Validate(); err != nil {
		return err
	}

	current := g.start
	for step := 0; ; step++ {
		if step >= g.maxSteps {
			return fmt.Errorf("workflow exceeded step budget of %d at node %q", g.maxSteps, current)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow cancelled at node %q: %w", current, err)
		}

		log.Debug().Str("node", current).Int("step", step).Msg("Executing workflow node")
		if err := g.nodes[current](ctx, session); err != nil {
			return fmt.Errorf("node %q failed: %w", current, err)
		}

		next, ok := g.next(current, session)
		if !ok {
			return nil
		}
		current = next
	}
}

func (g *Graph[S]) next(from string, session *S) (string, bool) {
	for _, e := range g.edges[from] {
		if e.When == nil || e.When(session) {
			return e.To, true
		}
	}
	return "", false
}
