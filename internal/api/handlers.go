package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/routing"
)

// maxRouteBodyBytes caps the accepted POST /v1/route body.
const maxRouteBodyBytes = 1 << 20

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRouteBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Operation == "" {
		writeError(w, http.StatusBadRequest, "operation is required")
		return
	}

	op := routing.OperationContext{
		RequestID:        uuid.NewString(),
		Operation:        req.Operation,
		Args:             req.Args,
		Complexity:       routing.Complexity(req.Complexity),
		Priority:         routing.Priority(req.Priority),
		Persona:          req.Persona,
		Flags:            req.Flags,
		MaxExecutionTime: time.Duration(req.MaxExecutionTimeMS) * time.Millisecond,
	}

	decision := s.decider.Decide(op)
	result := s.executor.Execute(r.Context(), decision, op)

	writeJSON(w, http.StatusOK, RouteResponse{
		RequestID: op.RequestID,
		Decision: DecisionView{
			TargetServers:   decision.TargetServers,
			Strategy:        string(decision.Strategy),
			TimeoutMS:       decision.Timeout.Milliseconds(),
			Priority:        string(decision.Priority),
			FallbackServers: decision.FallbackServers,
		},
		Result: ExecutionView{
			Success:    result.Success,
			Data:       result.Data,
			Error:      result.Error,
			DurationMS: result.Performance.Duration.Milliseconds(),
		},
	})
}

func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.health.Snapshot()

	out := make([]ServerView, 0, len(snapshot))
	for _, h := range snapshot {
		caps := make([]string, 0, len(h.Capabilities))
		for _, c := range h.Capabilities {
			caps = append(caps, c.Name)
		}
		out = append(out, ServerView{
			ServerID:        h.ServerID,
			Status:          string(h.Status),
			ResponseTimeMS:  h.ResponseTime,
			SuccessRate:     h.SuccessRate,
			CurrentLoad:     h.CurrentLoad,
			ErrorCount:      h.ErrorCount,
			LastHealthCheck: h.LastHealthCheck,
			Capabilities:    caps,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid since parameter")
			return
		}
		since = parsed
	}
	writeJSON(w, http.StatusOK, s.hub.SnapshotSince(since))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.health.Snapshot()
	online := 0
	for _, h := range snapshot {
		if h.Status == registry.StatusOnline {
			online++
		}
	}

	status := "ok"
	if online == 0 {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		ServersOnline: online,
		ServersTotal:  len(snapshot),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
