package chat

import (
	"context"

	"parley/internal/logging"
)

// Reconciler fetches persisted history for a session and merges it into
// the store without losing newer live content and without applying stale
// results from a superseded fetch.
type Reconciler struct {
	store      *Store
	api        Requester
	classifier HeartbeatClassifier
	limit      int
	log        logging.Logger
}

// NewReconciler builds a reconciler that shares the store's heartbeat
// classifier, so stream suppression and history parsing apply one
// predicate.
func NewReconciler(store *Store, api Requester, limit int, log logging.Logger) *Reconciler {
	if log == nil {
		log = logging.Nop()
	}
	classifier := DefaultHeartbeatClassifier()
	if store != nil && store.heartbeat != nil {
		classifier = store.heartbeat
	}
	return &Reconciler{
		store:      store,
		api:        api,
		classifier: classifier,
		limit:      limit,
		log:        log,
	}
}

// LoadHistory issues the history RPC and applies the result, unless the
// session was switched or cleared while the fetch was outstanding. The
// epoch comparison is the race-safety rule for the whole engine: the
// request is allowed to complete, but a stale result is discarded, never
// applied.
func (r *Reconciler) LoadHistory(ctx context.Context, sessionKey string) error {
	if r == nil || r.store == nil || r.api == nil || sessionKey == "" {
		return nil
	}
	epochBefore := r.store.Epoch()

	var resp HistoryResponse
	if err := r.api.Request(ctx, methodChatHistory, HistoryParams{SessionKey: sessionKey, Limit: r.limit}, &resp); err != nil {
		return err
	}

	if r.store.Epoch() != epochBefore {
		r.log.Debug("history response discarded",
			logging.F("session", sessionKey),
			logging.F("epoch_before", epochBefore),
			logging.F("epoch_after", r.store.Epoch()))
		return nil
	}

	r.store.HistoryLoaded(ParseHistory(resp.Messages, r.classifier))
	return nil
}
