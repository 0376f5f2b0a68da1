package strategy

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// EvaluatorInfo holds runtime counters for a registered evaluator (for the
// operator status API).
type EvaluatorInfo struct {
	Name            string
	CandidatesFound int64
	LastCandidate   *time.Time
	ErrorCount      int64
}

// Registry manages the named collection of evaluators the engine fans out
// over each pass. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
	info       map[string]*EvaluatorInfo
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		evaluators: make(map[string]Evaluator),
		info:       make(map[string]*EvaluatorInfo),
	}
}

// Register adds an evaluator to the registry under its own name. If an
// evaluator with the same name already exists it will be replaced.
func (r *Registry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Name()] = e
	r.info[e.Name()] = &EvaluatorInfo{Name: e.Name()}
}

// Get retrieves an evaluator by name. It returns an error when the name is
// not registered.
func (r *Registry) Get(name string) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.evaluators[name]
	if !ok {
		return nil, fmt.Errorf("evaluator %q: not registered", name)
	}
	return e, nil
}

// All returns the registered evaluators sorted by name, for deterministic
// fan-out order.
func (r *Registry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.evaluators))
	for n := range r.evaluators {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]Evaluator, 0, len(names))
	for _, n := range names {
		out = append(out, r.evaluators[n])
	}
	return out
}

// RecordResult updates the runtime counters for one evaluator after a pass.
func (r *Registry) RecordResult(name string, candidates int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.info[name]
	if !ok {
		return
	}
	if err != nil {
		info.ErrorCount++
		return
	}
	if candidates > 0 {
		info.CandidatesFound += int64(candidates)
		now := time.Now()
		info.LastCandidate = &now
	}
}

// ListInfo returns a copy of the runtime counters for all evaluators, sorted
// by name.
func (r *Registry) ListInfo() []EvaluatorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.info))
	for n := range r.info {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]EvaluatorInfo, 0, len(names))
	for _, n := range names {
		out = append(out, *r.info[n])
	}
	return out
}
