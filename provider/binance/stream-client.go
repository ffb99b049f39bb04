package binance

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/recws-org/recws"

	"github.com/itziklerner-pag/depthkeeper/domain"
)

var logger = log.New(os.Stdout, "[binance] ", log.LstdFlags)

const pingDelay = time.Minute * 9

type subscriptionEntry struct {
	ch              chan []byte
	subscriberCount int
}

type wsRequest struct {
	ReqId  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// streamEnvelope is the combined-stream wrapper every payload arrives in.
type streamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceStreamClient multiplexes topic subscriptions over one reconnecting
// websocket connection to the combined stream endpoint.
type BinanceStreamClient struct {
	endpoint      string
	conn          *recws.RecConn
	subscriptions map[string]*subscriptionEntry
	mu            sync.Mutex
	done          chan struct{}
}

func NewBinanceStreamClient(endpoint string) *BinanceStreamClient {
	return &BinanceStreamClient{
		endpoint:      endpoint,
		subscriptions: make(map[string]*subscriptionEntry),
		done:          make(chan struct{}),
	}
}

func (c *BinanceStreamClient) Connect() error {
	conn := &recws.RecConn{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
		KeepAliveTimeout: pingDelay,
		NonVerbose:       true,
	}
	conn.Dial(c.endpoint, nil)
	c.conn = conn

	go c.read()
	return nil
}

func (c *BinanceStreamClient) Subscribe(topic string) (*domain.Subscription[[]byte], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if ok {
		entry.subscriberCount++
	} else {
		entry = &subscriptionEntry{
			ch:              make(chan []byte, 64),
			subscriberCount: 1,
		}
		c.subscriptions[topic] = entry

		logger.Println("subscribing to", topic)
		err := c.conn.WriteJSON(wsRequest{
			Method: "SUBSCRIBE",
			ReqId:  randomReqID(),
			Params: []string{topic},
		})
		if err != nil {
			delete(c.subscriptions, topic)
			return nil, fmt.Errorf("failed to send subscribe msg for topic=%s: %w", topic, err)
		}
	}

	return &domain.Subscription[[]byte]{
		Stream:      entry.ch,
		Unsubscribe: func() { c.unsubscribe(topic) },
		Topic:       topic,
	}, nil
}

func (c *BinanceStreamClient) unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	if entry.subscriberCount > 1 {
		entry.subscriberCount--
		return
	}

	logger.Println("unsubscribing from topic", topic)
	close(entry.ch)
	delete(c.subscriptions, topic)

	if err := c.conn.WriteJSON(wsRequest{
		Method: "UNSUBSCRIBE",
		ReqId:  randomReqID(),
		Params: []string{topic},
	}); err != nil {
		logger.Printf("failed to send unsubscribe msg for topic=%s: %s", topic, err)
	}
}

func (c *BinanceStreamClient) Close() error {
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func (c *BinanceStreamClient) read() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			// recws redials on its own; just wait out the gap.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		var envelope streamEnvelope
		if err := json.Unmarshal(msg, &envelope); err != nil {
			logger.Printf("undecodable frame: %s", err)
			continue
		}
		if envelope.Stream == "" {
			// Ack of a subscribe/unsubscribe request.
			continue
		}

		c.mu.Lock()
		entry, ok := c.subscriptions[envelope.Stream]
		c.mu.Unlock()
		if !ok {
			continue
		}

		select {
		case entry.ch <- envelope.Data:
		default:
			logger.Printf("subscriber of %s is lagging, frame dropped", envelope.Stream)
		}
	}
}

func randomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}
