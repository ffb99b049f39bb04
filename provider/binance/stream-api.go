package binance

import (
	"encoding/json"
	"fmt"

	"github.com/itziklerner-pag/depthkeeper/domain"
)

// DepthUpdateData is a diff depth event as Binance encodes it on the wire.
type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId int64      `json:"U"`
	FinalUpdateId int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// BinanceStreamAPI decodes raw depth frames into domain updates.
type BinanceStreamAPI struct {
	streamClient *BinanceStreamClient
}

func NewBinanceStreamAPI(client *BinanceStreamClient) *BinanceStreamAPI {
	return &BinanceStreamAPI{streamClient: client}
}

func (bs *BinanceStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DepthUpdate], error) {
	topic := fmt.Sprintf("%s@depth@100ms", symbol.Join(""))
	subscription, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	stream := make(chan *domain.DepthUpdate, 64)
	go func() {
		defer close(stream)

		for msg := range subscription.Stream {
			update, err := decodeDepthUpdate(symbol, msg)
			if err != nil {
				logger.Printf("bad depth update on %s: %s", topic, err)
				continue
			}
			stream <- update
		}
	}()

	return &domain.Subscription[*domain.DepthUpdate]{
		Stream:      stream,
		Unsubscribe: subscription.Unsubscribe,
		Topic:       topic,
	}, nil
}

func decodeDepthUpdate(symbol *domain.MarketSymbol, msg []byte) (*domain.DepthUpdate, error) {
	var data DepthUpdateData
	if err := json.Unmarshal(msg, &data); err != nil {
		return nil, err
	}
	return domain.NewDepthUpdate(symbol, data.FirstUpdateId, data.FinalUpdateId, data.Bids, data.Asks)
}
