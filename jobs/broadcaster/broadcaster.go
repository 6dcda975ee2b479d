// Package broadcaster drains the trade outbox to Kafka.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"mmsim/domain/ledger"
	"mmsim/infra/codec"
	"mmsim/infra/metrics"
	"mmsim/infra/store"
)

// Outbox is the slice of the trade store the broadcaster needs.
type Outbox interface {
	ScanByState(state store.State, fn func(ledger.TradeRecord, store.Status) error) error
	UpdateState(seq uint64, state store.State, retries uint32) error
}

type Config struct {
	Topic   string
	Session string
	// MaxRetries is how many failed sends a trade gets before it is left
	// in Failed for good.
	MaxRetries uint32
}

type Broadcaster struct {
	outbox   Outbox
	producer sarama.SyncProducer
	cfg      Config
	log      *zap.Logger
	metrics  *metrics.Metrics
}

type Option func(*Broadcaster)

func WithLogger(l *zap.Logger) Option {
	return func(b *Broadcaster) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

// ------------------------------------------------
// CONSTRUCTORS
// ------------------------------------------------

// NewProducerConfig is the sarama setup trades are published with.
func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.ClientID = "mmsim-broadcaster"
	return cfg
}

// Dial connects a sync producer to brokers.
func Dial(outbox Outbox, brokers []string, cfg Config, opts ...Option) (*Broadcaster, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, errors.Wrap(err, "kafka producer")
	}
	return New(outbox, producer, cfg, opts...), nil
}

func New(outbox Outbox, producer sarama.SyncProducer, cfg Config, opts ...Option) *Broadcaster {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	b := &Broadcaster{
		outbox:   outbox,
		producer: producer,
		cfg:      cfg,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.Named("broadcaster")
	return b
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Run publishes pending trades every interval until ctx is done, then
// makes one last pass.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) error {
	b.log.Info("started", zap.String("topic", b.cfg.Topic), zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := b.PublishPending(); err != nil {
				b.log.Warn("final publish pass", zap.Error(err))
			}
			b.log.Info("stopped")
			return nil
		case <-ticker.C:
			if _, err := b.PublishPending(); err != nil {
				b.log.Warn("publish pass", zap.Error(err))
			}
		}
	}
}

// ------------------------------------------------
// PUBLISH
// ------------------------------------------------

// PublishPending sends every trade in a retryable Failed, Sent or New
// state, in that order, so a send that fails during a pass is retried on
// the next one. A trade left in Sent was interrupted mid-publish and is
// sent again, so delivery is at least once.
func (b *Broadcaster) PublishPending() (int, error) {
	published := 0
	for _, state := range []store.State{store.StateFailed, store.StateSent, store.StateNew} {
		err := b.outbox.ScanByState(state, func(r ledger.TradeRecord, st store.Status) error {
			if st.State == store.StateFailed && st.Retries >= b.cfg.MaxRetries {
				return nil
			}
			ok, err := b.publish(r, st)
			if ok {
				published++
			}
			return err
		})
		if err != nil {
			return published, err
		}
	}
	return published, nil
}

func (b *Broadcaster) publish(r ledger.TradeRecord, st store.Status) (bool, error) {
	// 1. mark SENT before the network call
	if err := b.outbox.UpdateState(r.Seq, store.StateSent, st.Retries); err != nil {
		return false, err
	}

	msg := &sarama.ProducerMessage{
		Topic: b.cfg.Topic,
		Key:   sarama.StringEncoder(strconv.FormatUint(r.Seq, 10)),
		Value: sarama.ByteEncoder(codec.EncodeTrade(r)),
		Headers: []sarama.RecordHeader{
			{Key: []byte("session"), Value: []byte(b.cfg.Session)},
			{Key: []byte("direction"), Value: []byte(r.Direction.String())},
		},
	}

	// 2. publish
	if _, _, err := b.producer.SendMessage(msg); err != nil {
		retries := st.Retries + 1
		b.count("failed")
		if retries >= b.cfg.MaxRetries {
			b.log.Error("giving up on trade", zap.Uint64("seq", r.Seq), zap.Uint32("retries", retries), zap.Error(err))
		} else {
			b.log.Warn("send failed", zap.Uint64("seq", r.Seq), zap.Uint32("retries", retries), zap.Error(err))
		}
		return false, b.outbox.UpdateState(r.Seq, store.StateFailed, retries)
	}

	// 3. mark ACKED
	b.count("acked")
	return true, b.outbox.UpdateState(r.Seq, store.StateAcked, st.Retries)
}

func (b *Broadcaster) count(outcome string) {
	if b.metrics != nil {
		b.metrics.Published.WithLabelValues(outcome).Inc()
	}
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
