package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"capture-agent/config"
	"capture-agent/dto"
)

const (
	exchangeName = "recordings"
	routingKey   = "recording.ready"
)

// Publisher announces finalized recordings to the processing pipeline.
type Publisher interface {
	PublishRecordingReady(ctx context.Context, event dto.RecordingReadyEvent) error
}

type publisher struct {
	conn *amqp.Connection
	cfg  *config.RabbitMQ
}

func NewPublisher(conn *amqp.Connection, cfg *config.RabbitMQ) Publisher {
	return &publisher{conn: conn, cfg: cfg}
}

func (p *publisher) PublishRecordingReady(ctx context.Context, event dto.RecordingReadyEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(exchangeName, p.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("exchange", exchangeName).Msg("failed to declare exchange")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("session_id", event.SessionID).Msg("failed to publish recording.ready")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("session_id", event.SessionID).
		Str("upload_ref", event.UploadRef).
		Int("chunk_count", event.ChunkCount).
		Msg("recording.ready published")

	return nil
}
