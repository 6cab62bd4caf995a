// Package api implements the read-only HTTP surface over the Store: health,
// chain cursor state, and the collection registry. No authentication is
// performed; the operator is responsible for binding this to a private
// address (the external interface contract's API_LISTEN default is
// loopback-only).
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/brc721/brc721d/internal/obs"
	"github.com/brc721/brc721d/internal/store"
)

// Server wires the Store and Metrics into an http.Handler via gorilla/mux.
type Server struct {
	store     *store.Store
	metrics   *obs.Metrics
	log       *logrus.Logger
	startedAt time.Time
	router    *mux.Router
}

// New builds the API router. Use Handler() to obtain the http.Handler to
// serve with an http.Server.
func New(st *store.Store, metrics *obs.Metrics, log *logrus.Logger) *Server {
	s := &Server{store: st, metrics: metrics, log: log, startedAt: time.Now()}
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/collections", s.handleCollections).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	s.router = r
	return s
}

// Handler returns the root http.Handler for this server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && s.log != nil {
		s.log.WithError(err).Warn("api: failed to encode response body")
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	UptimeSecs int64  `json:"uptime_secs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		UptimeSecs: int64(time.Since(s.startedAt).Seconds()),
	})
}

type cursorView struct {
	Height int64  `json:"height"`
	Hash   string `json:"hash"`
}

type stateResponse struct {
	Last *cursorView `json:"last"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	cursor, err := s.store.GetCursor(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	resp := stateResponse{}
	if cursor != nil {
		resp.Last = &cursorView{Height: cursor.LastHeight, Hash: cursor.LastHash}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type collectionView struct {
	ID                   string `json:"id"`
	EVMCollectionAddress string `json:"evmCollectionAddress"`
	Rebaseable           bool   `json:"rebaseable"`
}

type collectionsResponse struct {
	Collections []collectionView `json:"collections"`
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	rng, err := parseCollectionRange(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	collections, err := s.store.ListCollections(r.Context(), rng)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	views := make([]collectionView, 0, len(collections))
	for _, c := range collections {
		views = append(views, collectionView{
			ID:                   c.ID,
			EVMCollectionAddress: "0x" + hex.EncodeToString(c.EVMCollectionAddress[:]),
			Rebaseable:           c.Rebaseable,
		})
	}
	s.writeJSON(w, http.StatusOK, collectionsResponse{Collections: views})
}

func parseCollectionRange(r *http.Request) (*store.CollectionRange, error) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" && to == "" {
		return nil, nil
	}
	rng := &store.CollectionRange{}
	if from != "" {
		v, err := strconv.ParseInt(from, 10, 64)
		if err != nil {
			return nil, err
		}
		rng.FromHeight = v
	}
	if to != "" {
		v, err := strconv.ParseInt(to, 10, 64)
		if err != nil {
			return nil, err
		}
		rng.ToHeight = v
	}
	return rng, nil
}
