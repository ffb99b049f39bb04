package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/itziklerner-pag/depthkeeper/domain"
	"github.com/itziklerner-pag/depthkeeper/usecase"
)

type stubStreamAPI struct{}

func (s *stubStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.DepthUpdate], error) {
	return &domain.Subscription[*domain.DepthUpdate]{
		Stream:      make(chan *domain.DepthUpdate),
		Unsubscribe: func() {},
	}, nil
}

type stubBaselineProvider struct{}

func (s *stubBaselineProvider) OrderBookSnapshot(symbol *domain.MarketSymbol, limit int) (*domain.BaselineSnapshot, error) {
	return &domain.BaselineSnapshot{
		LastUpdateId: 9,
		Bids:         [][]string{{"100", "1"}},
		Asks:         [][]string{{"101", "2"}},
	}, nil
}

func testServer(t *testing.T) (*Server, *usecase.OrderBookSnapshotUseCase) {
	t.Helper()
	opts := domain.DefaultMaintainerOptions()
	opts.ResyncBackoffMin = time.Millisecond
	opts.ResyncBackoffMax = 5 * time.Millisecond
	uc := usecase.NewOrderBookSnapshotUseCase(domain.NewOrderBookStorage(), &stubStreamAPI{}, &stubBaselineProvider{}, opts)
	return NewServer(uc, 100), uc
}

func TestServer_Healthz(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_Snapshot(t *testing.T) {
	server, uc := testServer(t)

	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	assert.NoError(t, err)
	assert.NoError(t, uc.Subscribe(symbol))
	defer func() { _ = uc.Unsubscribe(symbol) }()

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot?symbol=btc_usdt&depth=10", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp snapshotResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "btc_usdt", resp.Symbol)
	assert.Equal(t, string(domain.SnapshotSource_LocalBook), resp.Source)
	assert.Equal(t, int64(9), resp.LastUpdateId)
	assert.Equal(t, [][]string{{"100", "1"}}, resp.Bids)
	assert.Equal(t, [][]string{{"101", "2"}}, resp.Asks)
}

func TestServer_Snapshot_BadRequest(t *testing.T) {
	server, _ := testServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot?symbol=nonsense", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot?symbol=btc_usdt&depth=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
