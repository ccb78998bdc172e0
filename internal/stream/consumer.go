package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quantb/internal/models"
)

// Updater is notified with a snapshot of the assistant message after every
// applied event.
type Updater func(msg models.Message)

// StatusFunc is notified of tool progress events with the running tool names.
type StatusFunc func(status string, tools []string)

// Consumer folds a chat stream into a single assistant message.
type Consumer struct {
	updater  Updater
	onStatus StatusFunc
	logger   zerolog.Logger
}

// NewConsumer creates a Consumer. updater may be nil.
func NewConsumer(updater Updater, logger zerolog.Logger) *Consumer {
	return &Consumer{
		updater: updater,
		logger:  logger.With().Str("component", "stream_consumer").Logger(),
	}
}

// OnStatus registers a callback for status events.
func (c *Consumer) OnStatus(fn StatusFunc) {
	c.onStatus = fn
}

// Consume reads body until the done marker. Content is appended, component
// batches are appended and metadata is replaced wholesale. On a transport
// or decode error the content becomes the apology text and metadata.error
// is set; the failed message is returned together with the error.
//
// Cancelling ctx closes body when it is an io.Closer, which unblocks a
// pending read; the partial message is returned with ctx.Err().
func (c *Consumer) Consume(ctx context.Context, body io.Reader) (models.Message, error) {
	msg := models.Message{
		ID:        uuid.NewString(),
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
	}

	if closer, ok := body.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	dec := NewDecoder(body)
	for {
		if err := ctx.Err(); err != nil {
			return msg, err
		}

		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return msg, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return msg, ctxErr
			}
			c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Chat stream failed")
			c.fail(&msg)
			return msg, err
		}

		c.apply(&msg, ev)
	}
}

func (c *Consumer) apply(msg *models.Message, ev Event) {
	if ev.Status != "" || len(ev.ToolCalls) > 0 {
		if c.onStatus != nil {
			c.onStatus(ev.Status, ev.ToolCalls)
		}
	}

	changed := false
	if ev.Content != "" {
		msg.Content += ev.Content
		changed = true
	}
	if len(ev.Components) > 0 {
		msg.Components = append(msg.Components, ev.Components...)
		changed = true
	}
	if ev.Layout != "" {
		if msg.Metadata == nil {
			msg.Metadata = &models.MessageMetadata{}
		}
		msg.Metadata.Layout = ev.Layout
		changed = true
	}
	if ev.Metadata != nil {
		meta := *ev.Metadata
		msg.Metadata = &meta
		changed = true
	}

	if changed {
		c.notify(*msg)
	}
}

func (c *Consumer) fail(msg *models.Message) {
	msg.Content = Apology
	if msg.Metadata == nil {
		msg.Metadata = &models.MessageMetadata{}
	}
	msg.Metadata.Error = true
	c.notify(*msg)
}

func (c *Consumer) notify(msg models.Message) {
	if c.updater != nil {
		c.updater(msg)
	}
}
