package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/xchg"
)

var errBadRequest = errors.New("bad request")

// session is one connection's view of its exchange. Handles are addressed
// on the wire by their ID and released when the connection ends.
type session struct {
	x       *xchg.Exchange
	store   *xchg.SnapshotStore
	handles map[uint64]*xchg.Handle
	log     *zap.Logger
}

func newSession(x *xchg.Exchange, store *xchg.SnapshotStore, logger *zap.Logger) *session {
	return &session{
		x:       x,
		store:   store,
		handles: make(map[uint64]*xchg.Handle),
		log:     logger,
	}
}

func (s *session) close() {
	for id, h := range s.handles {
		h.Release()
		delete(s.handles, id)
	}
	if err := s.x.Close(); err != nil {
		s.log.Warn("closing exchange", zap.Error(err))
	}
}

func (s *session) track(h *xchg.Handle) uint64 {
	s.handles[h.ID()] = h
	return h.ID()
}

func (s *session) lookup(id uint64) (*xchg.Handle, error) {
	h, ok := s.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errUnknownHandle, id)
	}
	return h, nil
}

// handle executes req and never returns an error; failures are reported in
// the response.
func (s *session) handle(ctx context.Context, req Request) Response {
	resp, err := s.dispatch(ctx, req)
	resp.ID = req.ID
	if err != nil {
		resp.OK = false
		resp.Error = err.Error()
		resp.Code = errorCode(err)
		return resp
	}
	resp.OK = true
	return resp
}

func (s *session) dispatch(ctx context.Context, req Request) (Response, error) {
	var resp Response
	switch req.Op {
	case OpCreate:
		kind, err := xchg.ParseElementKind(req.Kind)
		if err != nil {
			return resp, err
		}
		h, err := s.x.Create(kind, req.Values)
		if err != nil {
			return resp, err
		}
		resp.Handle = s.track(h)

	case OpUpdate:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		return resp, s.x.UpdateWithData(h, req.Data)

	case OpValues:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		vals, err := s.x.FromValue(h)
		if err != nil {
			return resp, err
		}
		resp.Values = numbers(vals)

	case OpRaw:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		if resp.Data, err = s.x.RawFromValue(h); err != nil {
			return resp, err
		}

	case OpType:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		kind, err := s.x.TypeFromValue(h)
		if err != nil {
			return resp, err
		}
		resp.Kind = kind.String()

	case OpEval:
		h, err := s.x.Evaluate(req.Expr)
		if err != nil {
			return resp, err
		}
		resp.Handle = s.track(h)

	case OpImport:
		h, err := s.x.Import(req.Name)
		if err != nil {
			return resp, err
		}
		resp.Handle = s.track(h)

	case OpExport:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		return resp, s.x.Export(h, req.Name)

	case OpRelease:
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		delete(s.handles, req.Handle)
		h.Release()

	case OpSave:
		if s.store == nil {
			return resp, fmt.Errorf("%w: snapshots are disabled", errBadRequest)
		}
		h, err := s.lookup(req.Handle)
		if err != nil {
			return resp, err
		}
		return resp, s.x.SaveSnapshot(ctx, s.store, req.Name, h)

	case OpRestore:
		if s.store == nil {
			return resp, fmt.Errorf("%w: snapshots are disabled", errBadRequest)
		}
		h, err := s.x.RestoreSnapshot(ctx, s.store, req.Name)
		if err != nil {
			return resp, err
		}
		resp.Handle = s.track(h)

	case OpList:
		if s.store == nil {
			return resp, fmt.Errorf("%w: snapshots are disabled", errBadRequest)
		}
		infos, err := s.store.List(ctx)
		if err != nil {
			return resp, err
		}
		resp.Snapshots = infos

	default:
		return resp, fmt.Errorf("%w: unknown op %q", errBadRequest, req.Op)
	}
	return resp, nil
}
