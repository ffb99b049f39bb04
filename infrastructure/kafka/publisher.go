package kafka

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/itziklerner-pag/depthkeeper/domain"
)

var logger = log.New(os.Stdout, "[kafka-publisher] ", log.LstdFlags)

type snapshotMessage struct {
	Symbol       string     `json:"symbol"`
	Status       string     `json:"status"`
	LastUpdateId int64      `json:"lastUpdateId"`
	TakenAt      int64      `json:"takenAt"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// Publisher pushes top-N snapshots to a topic whenever a book signals an
// update, throttled to a minimum interval per symbol. It never blocks the
// writer path: it reads coalesced update signals and immutable snapshots.
type Publisher struct {
	writer      *kafka.Writer
	depth       int
	minInterval time.Duration
}

func NewPublisher(brokers []string, topic string, depth int, minInterval time.Duration) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireOne,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		depth:       depth,
		minInterval: minInterval,
	}
}

// Watch consumes a maintainer's update signal until ctx is done.
func (p *Publisher) Watch(ctx context.Context, maintainer *domain.OrderbookMaintainer) {
	throttle := time.NewTicker(p.minInterval)
	defer throttle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-maintainer.Updated():
			p.publish(ctx, maintainer)
			// Swallow signals until the next tick.
			select {
			case <-ctx.Done():
				return
			case <-throttle.C:
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, maintainer *domain.OrderbookMaintainer) {
	snapshot := maintainer.Book().TakeSnapshot(p.depth)

	value, err := json.Marshal(snapshotMessage{
		Symbol:       snapshot.Symbol,
		Status:       string(snapshot.Status),
		LastUpdateId: snapshot.LastUpdateId,
		TakenAt:      snapshot.TakenAt,
		Bids:         domain.SerializeLevels(snapshot.Bids),
		Asks:         domain.SerializeLevels(snapshot.Asks),
	})
	if err != nil {
		logger.Printf("failed to encode snapshot for %s: %s", snapshot.Symbol, err)
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snapshot.Symbol),
		Value: value,
	})
	if err != nil {
		logger.Printf("failed to publish snapshot for %s: %s", snapshot.Symbol, err)
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
