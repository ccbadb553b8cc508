package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grigta/simgate/pkg/messaging"
	"github.com/grigta/simgate/services/ussd-service/internal/models"
)

// ResponseRecorder is the part of GatewayService the consumer drives.
type ResponseRecorder interface {
	RecordResponse(ctx context.Context, id string, resp models.ExecutorResponse) (*models.Transaction, error)
}

// ResponseConsumer applies executor callbacks delivered on the ussd.responses queue.
type ResponseConsumer struct {
	consumer messaging.Consumer
	recorder ResponseRecorder
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewResponseConsumer(consumer messaging.Consumer, recorder ResponseRecorder, logger *logrus.Logger) *ResponseConsumer {
	return &ResponseConsumer{
		consumer: consumer,
		recorder: recorder,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

func (c *ResponseConsumer) Start(ctx context.Context) error {
	return c.consumer.ConsumeWithHandler(ctx, messaging.QueueResponses, "ussd-service-responses", func(body []byte) error {
		return c.Handle(ctx, body)
	})
}

// Handle processes one delivery. Bodies may be a bare callback or wrapped in a messaging.Message.
// Malformed bodies and unknown transactions are discarded; anything else is retried.
func (c *ResponseConsumer) Handle(ctx context.Context, body []byte) error {
	payload := unwrap(body)

	resp, err := DecodeExecutorResponse(payload)
	if err != nil {
		c.logger.WithError(err).Warn("Malformed executor response discarded")
		return messaging.ErrDiscard
	}
	if resp.TransactionID == "" {
		c.logger.Warn("Executor response without transaction id discarded")
		return messaging.ErrDiscard
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.recorder.RecordResponse(ctx, resp.TransactionID, resp); err != nil {
		log := c.logger.WithError(err).WithField("transaction_id", resp.TransactionID)
		if models.IsKind(err, models.KindNotFound) || models.IsKind(err, models.KindValidation) {
			log.Warn("Executor response rejected")
			return messaging.ErrDiscard
		}
		log.Error("Failed to record executor response")
		return err
	}
	return nil
}

func unwrap(body []byte) []byte {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Type == "" || len(envelope.Data) == 0 {
		return body
	}
	return envelope.Data
}
