// Package server is the ops HTTP surface: status, the parameter
// registry, a write-enqueue path and the audit history. The write path
// only enqueues onto the bridge worker; the server never touches the
// cloud API itself.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/solisctl/solis-integration/internal/pkg/bridge"
	"github.com/solisctl/solis-integration/internal/pkg/model"
)

const historyLimit = 100

type bridgeService interface {
	Enqueue(cmd model.Command) error
	Bound() int
	Connected() bool
	StartedAt() time.Time
}

type stateCache interface {
	Snapshot() map[string]string
}

// HistoryStore is implemented by the audit store. Nil when the deploy
// runs without a database.
type HistoryStore interface {
	GetHistory(ctx context.Context, limit int) (model.StateRecords, error)
	GetLatest(ctx context.Context) (model.StateRecords, error)
}

type server struct {
	bridge    bridgeService
	states    stateCache
	store     HistoryStore
	discovery bool
	logger    *zap.Logger
}

func New(bs bridgeService, states stateCache, store HistoryStore, discovery bool) *server {
	return &server{
		bridge:    bs,
		states:    states,
		store:     store,
		discovery: discovery,
		logger:    zap.L(),
	}
}

func (s *server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/parameters", s.getParameters).Methods(http.MethodGet)
	api.HandleFunc("/parameters/{name}", s.postParameter).Methods(http.MethodPost)
	api.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/latest", s.getLatestHistory).Methods(http.MethodGet)
	return r
}

func (s *server) getStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		UptimeSeconds:    int64(time.Since(s.bridge.StartedAt()).Seconds()),
		BusConnected:     s.bridge.Connected(),
		Discovery:        s.discovery,
		ForcechargeBound: s.bridge.Bound(),
	})
}

func (s *server) getParameters(w http.ResponseWriter, r *http.Request) {
	values := s.states.Snapshot()
	out := make([]ParameterResponse, 0, len(model.Parameters))
	for _, param := range model.Parameters {
		resp := ParameterResponse{
			Name:        param.Name.String(),
			Cid:         param.Cid,
			TopicSuffix: param.TopicSuffix,
			Unit:        param.Unit,
			Settable:    param.Settable,
			Implemented: param.Implemented,
		}
		if value, ok := values[param.Slug()]; ok {
			resp.Value = &value
		}
		if param.Name == model.ForcechargeSoc {
			bound := s.bridge.Bound()
			resp.Max = &bound
		} else if d, ok := param.Domain.(model.IntRange); ok {
			max := d.Max
			resp.Max = &max
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

// postParameter enqueues a synthetic set command. The worker applies
// the same validate/write/read-back protocol as for bus messages, so a
// 202 only means "queued", not "written".
func (s *server) postParameter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	param, ok := model.ParameterByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown parameter "+name)
		return
	}
	if !param.Settable {
		writeError(w, http.StatusMethodNotAllowed, param.Name.String()+" is read-only")
		return
	}

	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	cmd := model.Command{
		Kind:    model.SetCommand,
		Param:   param,
		Payload: req.Value,
		Topic:   "api:" + param.Name.String(),
	}
	if err := s.bridge.Enqueue(cmd); err != nil {
		if errors.Is(err, bridge.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("enqueued api write",
		zap.String("parameter", param.Name.String()),
		zap.String("value", req.Value))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history store disabled")
		return
	}
	records, err := s.store.GetHistory(r.Context(), historyLimit)
	if err != nil {
		s.logger.Error("history read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = model.StateRecords{}
	}
	writeJSON(w, http.StatusOK, records)
}

// getLatestHistory serves the newest recorded value per parameter.
// Unlike /parameters it survives a restart: the publisher cache starts
// cold, the audit store does not.
func (s *server) getLatestHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "history store disabled")
		return
	}
	records, err := s.store.GetLatest(r.Context())
	if err != nil {
		s.logger.Error("latest history read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = model.StateRecords{}
	}
	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
