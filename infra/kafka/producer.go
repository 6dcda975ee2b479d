// Package kafka publishes PnL points with kafka-go.
package kafka

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/kafka-go"

	"mmsim/domain/pnl"
	"mmsim/infra/codec"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PointPublisher writes PnL points keyed by session.
type PointPublisher struct {
	writer    MessageWriter
	session   string
	batchSize int
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPointPublisher(w MessageWriter, session string) *PointPublisher {
	return &PointPublisher{writer: w, session: session, batchSize: 500}
}

// Publish writes points in batches, in order. All points of one session
// share a key and so land on one partition.
func (p *PointPublisher) Publish(ctx context.Context, points []pnl.Point) error {
	key := []byte(p.session)
	for start := 0; start < len(points); start += p.batchSize {
		end := min(start+p.batchSize, len(points))
		msgs := make([]kafka.Message, 0, end-start)
		for _, pt := range points[start:end] {
			msgs = append(msgs, kafka.Message{
				Key:   key,
				Value: codec.EncodePoint(p.session, pt),
				Time:  pt.Time,
			})
		}
		if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
			return errors.Wrapf(err, "publish points %d..%d", start, end)
		}
	}
	return nil
}

func (p *PointPublisher) Close() error {
	return p.writer.Close()
}
