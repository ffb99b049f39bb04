package api

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/itziklerner-pag/depthkeeper/config"
	"github.com/itziklerner-pag/depthkeeper/domain"
	"github.com/itziklerner-pag/depthkeeper/helpers"
	"github.com/itziklerner-pag/depthkeeper/usecase"
)

var logger = log.New(os.Stdout, "[api] ", log.LstdFlags)

type snapshotResponse struct {
	Symbol       string     `json:"symbol"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	LastUpdateId int64      `json:"lastUpdateId"`
	TakenAt      int64      `json:"takenAt"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the query surface for distribution collaborators that poll
// rather than subscribe.
type Server struct {
	mux      *http.ServeMux
	usecase  *usecase.OrderBookSnapshotUseCase
	maxDepth int
}

func NewServer(uc *usecase.OrderBookSnapshotUseCase, maxDepth int) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		usecase:  uc,
		maxDepth: maxDepth,
	}
	s.mux.HandleFunc("/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(addr string) error {
	logger.Printf("http api listening at %s", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	symbol, err := domain.NewMarketSymbolFromString(r.URL.Query().Get("symbol"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	depth := s.maxDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		depth, err = strconv.Atoi(raw)
		if err != nil || depth < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "depth must be a positive integer"})
			return
		}
		if depth > s.maxDepth {
			depth = s.maxDepth
		}
	}

	snapshot, err := s.usecase.GetSnapshot(symbol, depth)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}

	if config.DebugMode {
		logger.Printf("serving snapshot %s", helpers.ToJsonString(snapshot))
	}

	writeJSON(w, http.StatusOK, snapshotResponse{
		Symbol:       snapshot.Symbol,
		Source:       string(snapshot.Source),
		Status:       string(snapshot.Status),
		LastUpdateId: snapshot.LastUpdateId,
		TakenAt:      snapshot.TakenAt,
		Bids:         domain.SerializeLevels(snapshot.Bids),
		Asks:         domain.SerializeLevels(snapshot.Asks),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf("failed to encode response: %s", err)
	}
}
