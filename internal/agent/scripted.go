package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ScriptedAgent returns canned responses keyed by request phase. It backs the
// eval harness and tests; no network calls are made.
type ScriptedAgent struct {
	mu        sync.Mutex
	responses map[string][]string
	cursor    map[string]int
	Requests  []Request
}

// NewScriptedAgent creates an empty scripted agent.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{
		responses: make(map[string][]string),
		cursor:    make(map[string]int),
	}
}

// Script queues a raw response for a phase. Responses for the same phase are
// consumed in the order they were queued; the last one repeats.
func (s *ScriptedAgent) Script(phase, response string) *ScriptedAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[phase] = append(s.responses[phase], response)
	return s
}

// ScriptJSON marshals payload and queues it as the response for a phase.
func (s *ScriptedAgent) ScriptJSON(phase string, payload interface{}) *ScriptedAgent {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("scripted payload for %s is not marshalable: %v", phase, err))
	}
	return s.Script(phase, string(data))
}

// GenerateStructured implements Agent.
func (s *ScriptedAgent) GenerateStructured(ctx context.Context, req Request, target interface{}) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}

	s.mu.Lock()
	s.Requests = append(s.Requests, req)
	queue, ok := s.responses[req.Phase]
	if !ok || len(queue) == 0 {
		s.mu.Unlock()
		return Usage{}, fmt.Errorf("no scripted response for phase %q", req.Phase)
	}
	idx := s.cursor[req.Phase]
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	raw := queue[idx]
	s.cursor[req.Phase]++
	s.mu.Unlock()

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return Usage{Attempts: 1, ResponseChars: len(raw)}, fmt.Errorf("scripted response for %q invalid: %w", req.Phase, err)
	}
	return Usage{Attempts: 1, ResponseChars: len(raw)}, nil
}

// CallCount returns how many requests were seen for a phase.
func (s *ScriptedAgent) CallCount(phase string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.Requests {
		if req.Phase == phase {
			n++
		}
	}
	return n
}
