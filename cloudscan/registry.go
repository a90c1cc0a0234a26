package cloudscan

import (
	"sync"

	"github.com/google/uuid"
)

// RenderHandle identifies a snapshot handed to the renderer.
type RenderHandle struct {
	ID uuid.UUID
}

// Presenter is the rendering side. It owns whatever it creates for a snapshot
// until Destroy is called with the returned handle.
type Presenter interface {
	Present(s *Snapshot) RenderHandle
	Destroy(h RenderHandle)
}

type registered struct {
	handle   RenderHandle
	snapshot *Snapshot
}

// Registry is the set of live snapshots. Snapshots only leave it through ClearAll.
type Registry struct {
	presenter Presenter

	mu   sync.Mutex
	live []registered
}

// NewRegistry returns an empty registry. A nil presenter keeps snapshots
// without rendering them.
func NewRegistry(presenter Presenter) *Registry {
	if presenter == nil {
		presenter = nopPresenter{}
	}
	return &Registry{presenter: presenter}
}

// Add presents s and keeps it until the next ClearAll.
func (r *Registry) Add(s *Snapshot) {
	h := r.presenter.Present(s)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append(r.live, registered{handle: h, snapshot: s})
}

// ClearAll destroys every live snapshot and returns how many there were.
func (r *Registry) ClearAll() int {
	r.mu.Lock()
	live := r.live
	r.live = nil
	r.mu.Unlock()

	for _, l := range live {
		r.presenter.Destroy(l.handle)
	}
	return len(live)
}

// Len is the number of live snapshots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// Snapshots returns the live snapshots in the order they were added.
func (r *Registry) Snapshots() []*Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Snapshot, 0, len(r.live))
	for _, l := range r.live {
		out = append(out, l.snapshot)
	}
	return out
}

// VertexCount is the total number of points across live snapshots.
func (r *Registry) VertexCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, l := range r.live {
		total += l.snapshot.VertexCount()
	}
	return total
}

type nopPresenter struct{}

func (nopPresenter) Present(s *Snapshot) RenderHandle {
	return RenderHandle{ID: s.ID}
}

func (nopPresenter) Destroy(RenderHandle) {}
