package cloudscan

import "sync"

// RenderOp is a registry change decided while processing a depth frame.
type RenderOp struct {
	Clear      bool
	Snapshot   *Snapshot
	Generation uint64
}

// Handoff carries render ops from the depth callback to the render loop.
// There is one producer and one consumer; Push never blocks.
type Handoff struct {
	mu      sync.Mutex
	pending []RenderOp
}

// Push queues op for the next Drain.
func (h *Handoff) Push(op RenderOp) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, op)
}

// Drain returns the queued ops in order and empties the queue.
func (h *Handoff) Drain() []RenderOp {
	h.mu.Lock()
	defer h.mu.Unlock()
	ops := h.pending
	h.pending = nil
	return ops
}

// Len is the number of queued ops.
func (h *Handoff) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Apply runs ops against r, skipping any decided before the current generation.
// It returns how many snapshots were added.
func Apply(r *Registry, ops []RenderOp, generation uint64) int {
	added := 0
	for _, op := range ops {
		if op.Generation != generation {
			continue
		}
		if op.Clear {
			r.ClearAll()
		}
		if op.Snapshot != nil {
			r.Add(op.Snapshot)
			added++
		}
	}
	return added
}
