package voice

import "sync"

// PendingHandle is a TrackHandle the transport resolves once playback finishes
type PendingHandle struct {
	mu        sync.Mutex
	done      bool
	err       error
	callbacks []func(error)
}

// NewPendingHandle creates an unresolved handle
func NewPendingHandle() *PendingHandle {
	return &PendingHandle{}
}

// OnError implements TrackHandle
func (h *PendingHandle) OnError(cb func(error)) {
	h.mu.Lock()
	if !h.done {
		h.callbacks = append(h.callbacks, cb)
		h.mu.Unlock()
		return
	}
	err := h.err
	h.mu.Unlock()

	if err != nil {
		cb(err)
	}
}

// Resolve settles the handle. A nil err means the track played; callbacks are dropped.
// Only the first call has any effect.
func (h *PendingHandle) Resolve(err error) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	h.err = err
	callbacks := h.callbacks
	h.callbacks = nil
	h.mu.Unlock()

	if err == nil {
		return
	}
	for _, cb := range callbacks {
		cb(err)
	}
}
