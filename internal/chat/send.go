package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"parley/internal/logging"
	"parley/internal/types"
)

// Sender runs the submit pipeline: optimistic insertion, request
// dispatch, success or failure resolution.
type Sender struct {
	store  *Store
	api    Requester
	limits AttachmentLimits
	newID  func() string
	log    logging.Logger
}

func NewSender(store *Store, api Requester, limits AttachmentLimits, log logging.Logger) *Sender {
	if log == nil {
		log = logging.Nop()
	}
	return &Sender{
		store:  store,
		api:    api,
		limits: limits,
		newID:  uuid.NewString,
		log:    log,
	}
}

// Send submits a user message with optional attachments. The returned run
// id doubles as the idempotency key on the wire, so a gateway-side retry
// cannot duplicate the exchange. On failure the optimistic bubble is still
// marked delivered; the failure is surfaced through the session error
// flag, not by rolling the bubble back.
func (s *Sender) Send(ctx context.Context, sessionKey, text string, attachments []types.Attachment) (string, error) {
	if s == nil || s.store == nil || s.api == nil {
		return "", nil
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && len(attachments) == 0 {
		return "", nil
	}

	localID := "u-" + s.newID()
	runID := s.newID()

	display := trimmed
	if display == "" {
		display = attachmentPlaceholder(len(attachments))
	}
	s.store.UserMessageQueued(localID, display, attachments)
	s.store.EnsureStreamRun(runID)

	s.store.SetSending(true)
	defer s.store.SetSending(false)

	wire, err := EncodeAttachments(attachments, s.limits)
	if err != nil {
		s.store.MarkUserMessageDelivered(localID)
		s.store.StreamCleared(runID)
		s.store.SetError(err.Error())
		return runID, err
	}

	err = s.api.Request(ctx, methodChatSend, SendParams{
		SessionKey:     sessionKey,
		Message:        trimmed,
		Deliver:        false,
		IdempotencyKey: runID,
		Attachments:    wire,
	}, nil)
	s.store.MarkUserMessageDelivered(localID)
	if err != nil {
		s.log.Warn("send failed", logging.F("session", sessionKey), logging.F("run", runID), logging.F("err", err))
		s.store.StreamCleared(runID)
		s.store.SetError(err.Error())
		return runID, err
	}
	return runID, nil
}

func attachmentPlaceholder(count int) string {
	if count == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", count)
}
