package cloudscan

// FrameTimer derives the time between consecutive depth frames.
type FrameTimer struct {
	seen     bool
	previous float64
	delta    float32
}

// Observe records a frame timestamp (seconds) and returns the delta in milliseconds.
// The first frame has a delta of 0.
func (ft *FrameTimer) Observe(timestamp float64) float32 {
	if !ft.seen {
		ft.seen = true
		ft.previous = timestamp
		ft.delta = 0
		return 0
	}
	ft.delta = float32((timestamp - ft.previous) * 1000.0)
	ft.previous = timestamp
	return ft.delta
}

// DeltaMillis is the delta computed by the last Observe.
func (ft *FrameTimer) DeltaMillis() float32 {
	return ft.delta
}

// Previous is the last observed timestamp.
func (ft *FrameTimer) Previous() (float64, bool) {
	return ft.previous, ft.seen
}
