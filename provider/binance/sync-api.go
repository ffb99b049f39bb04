package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/itziklerner-pag/depthkeeper/domain"
)

const depthRequestTimeout = 10 * time.Second

// BinanceSyncAPI fetches authoritative depth snapshots over REST. It is the
// baseline provider the resync path leans on.
type BinanceSyncAPI struct {
	baseURL    string
	httpClient *http.Client
}

func NewBinanceSyncAPI(baseURL string) *BinanceSyncAPI {
	return &BinanceSyncAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: depthRequestTimeout},
	}
}

func (api *BinanceSyncAPI) OrderBookSnapshot(symbol *domain.MarketSymbol, limit int) (*domain.BaselineSnapshot, error) {
	url := fmt.Sprintf("%s/api/v3/depth?symbol=%s&limit=%d",
		api.baseURL, symbol.ExchangeForm(), limit)

	ctx, cancel := context.WithTimeout(context.Background(), depthRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("depth request for %s returned %d: %s", symbol, resp.StatusCode, body)
	}

	var snapshot domain.BaselineSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decoding depth response for %s: %w", symbol, err)
	}
	return &snapshot, nil
}
