package farm

import (
	"context"
	"sync"

	"github.com/ellenhp/bambu-farm/internal/printer"
)

// hub is the single owner of the roster reference and the session index.
//
// Every read and write is a request executed on the hub goroutine, so the
// index needs no lock and no lock is ever held across device I/O. Callers
// bound their wait for the hub with a context. Once a request has been
// handed over it always runs to completion and the caller waits for it.
type hub struct {
	requests chan hubRequest
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// hubState is only touched by the hub goroutine.
type hubState struct {
	roster   *printer.Registry
	sessions map[string]*session // device ID -> live session
}

type hubRequest struct {
	fn    func(*hubState)
	reply chan struct{}
}

func newHub(roster *printer.Registry) *hub {
	h := &hub{
		requests: make(chan hubRequest),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	st := &hubState{
		roster:   roster,
		sessions: make(map[string]*session),
	}
	go h.run(st)
	return h
}

func (h *hub) run(st *hubState) {
	defer close(h.stopped)
	for {
		select {
		case req := <-h.requests:
			req.fn(st)
			close(req.reply)
		case <-h.quit:
			return
		}
	}
}

// stop ends the hub goroutine and waits for it.
func (h *hub) stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.stopped
}

// do runs fn on the hub goroutine and waits for it to finish.
//
// ctx only bounds the handoff. After the hub accepts the request, fn runs
// and do waits for it, so a nil error means fn ran and an error means it
// did not. fn must not block.
func (h *hub) do(ctx context.Context, fn func(*hubState)) error {
	req := hubRequest{fn: fn, reply: make(chan struct{})}

	select {
	case h.requests <- req:
	case <-h.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.reply:
		return nil
	case <-h.stopped:
		return ErrClosed
	}
}

// roster returns a snapshot of every printer.
func (h *hub) roster(ctx context.Context) ([]printer.Record, error) {
	var records []printer.Record
	err := h.do(ctx, func(st *hubState) {
		records = st.roster.List()
	})
	return records, err
}

// lookup returns one printer.
func (h *hub) lookup(ctx context.Context, id string) (printer.Record, error) {
	var (
		rec       printer.Record
		lookupErr error
	)
	if err := h.do(ctx, func(st *hubState) {
		rec, lookupErr = st.roster.Lookup(id)
	}); err != nil {
		return printer.Record{}, err
	}
	return rec, lookupErr
}

// register makes s the session for its device and returns the session it
// replaced, if any. The caller must retire the previous session.
func (h *hub) register(ctx context.Context, s *session) (*session, error) {
	var prev *session
	err := h.do(ctx, func(st *hubState) {
		prev = st.sessions[s.deviceID]
		st.sessions[s.deviceID] = s
	})
	return prev, err
}

// session returns the current session for a device.
func (h *hub) session(ctx context.Context, deviceID string) (*session, error) {
	var s *session
	if err := h.do(ctx, func(st *hubState) {
		s = st.sessions[deviceID]
	}); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// remove drops s from the index. A session that has already been replaced
// is left alone, so a retiring session never unregisters its successor.
func (h *hub) remove(ctx context.Context, s *session) error {
	return h.do(ctx, func(st *hubState) {
		if cur, ok := st.sessions[s.deviceID]; ok && cur == s {
			delete(st.sessions, s.deviceID)
		}
	})
}

// sessions returns every indexed session, ordered by device ID.
func (h *hub) sessions(ctx context.Context) ([]*session, error) {
	var out []*session
	err := h.do(ctx, func(st *hubState) {
		out = make([]*session, 0, len(st.sessions))
		for _, rec := range st.roster.List() {
			if s, ok := st.sessions[rec.ID]; ok {
				out = append(out, s)
			}
		}
	})
	return out, err
}

// drain empties the index and returns what it held.
func (h *hub) drain(ctx context.Context) ([]*session, error) {
	var out []*session
	err := h.do(ctx, func(st *hubState) {
		for id, s := range st.sessions {
			out = append(out, s)
			delete(st.sessions, id)
		}
	})
	return out, err
}
