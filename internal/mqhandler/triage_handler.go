package mqhandler

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// BatchProcessor runs the triage pipeline over a batch of inbound emails.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, units []model.InboundUnit) error
}

// TriageHandler consumes object-created events for raw emails.
type TriageHandler struct {
	pipeline BatchProcessor
	logger   *zap.Logger
}

func NewTriageHandler(pipeline BatchProcessor, logger *zap.Logger) *TriageHandler {
	return &TriageHandler{pipeline: pipeline, logger: logger}
}

// Handle treats one message as one batch; every record is a unit.
func (h *TriageHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	event, err := mqcontracts.ParseObjectCreated(raw)
	if err != nil {
		log.Error("Invalid object-created event", zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}

	refs := event.Refs()
	if len(refs) == 0 {
		log.Warn("Object-created event without records, skipping")
		return nil
	}

	units := make([]model.InboundUnit, 0, len(refs))
	for _, ref := range refs {
		units = append(units, model.InboundUnit{Bucket: ref.Bucket, Key: ref.Key})
	}

	log.Info("Processing email batch", zap.Int("units", len(units)))
	return h.pipeline.ProcessBatch(ctx, units)
}
