package channel

import (
	"context"

	"github.com/google/uuid"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// InAppStore persists inbox messages; the Postgres implementation
// lives in the store package.
type InAppStore interface {
	InsertMessage(ctx context.Context, msg models.InAppMessage) error
}

// InAppSender writes the message to the recipient's inbox instead of
// calling an external provider.
type InAppSender struct {
	store InAppStore
	clock clock.Clock
}

func NewInAppSender(store InAppStore, clk clock.Clock) *InAppSender {
	if clk == nil {
		clk = clock.System()
	}
	return &InAppSender{store: store, clock: clk}
}

func (s *InAppSender) Send(ctx context.Context, msg Message) (string, error) {
	record := models.InAppMessage{
		ID:        uuid.New().String(),
		UserID:    msg.UserID,
		Subject:   msg.Subject,
		Body:      msg.Body,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertMessage(ctx, record); err != nil {
		return "", errs.NewTransientSendError(string(models.ChannelInApp), err)
	}
	return record.ID, nil
}
