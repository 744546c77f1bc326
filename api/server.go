// Package api exposes the daemon's HTTP surface: the instance registry and
// lifecycle endpoints, port/name availability checks, the websocket log
// observer channel, shared redis-server control, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/botloft/botloft/audit"
	"github.com/botloft/botloft/hub"
	"github.com/botloft/botloft/metrics"
	"github.com/botloft/botloft/ports"
	"github.com/botloft/botloft/redisd"
	"github.com/botloft/botloft/registry"
	"github.com/botloft/botloft/supervisor"
)

// Server wires the HTTP routes to the daemon's collaborators.
//
// The mutations mutex serializes every check-then-commit registry write
// (create, rename, port change) so two concurrent requests cannot both pass
// the same uniqueness check and then both commit.
type Server struct {
	mutations sync.Mutex

	store  *registry.Store
	sup    *supervisor.Supervisor
	hub    *hub.Hub
	redis  *redisd.Coordinator
	audit  *audit.Logger
	logger *slog.Logger

	httpServer *http.Server
}

// New creates the API server listening on addr.
func New(addr string, store *registry.Store, sup *supervisor.Supervisor, h *hub.Hub, redis *redisd.Coordinator, auditLog *audit.Logger, logger *slog.Logger) *Server {
	s := &Server{
		store:  store,
		sup:    sup,
		hub:    h,
		redis:  redis,
		audit:  auditLog,
		logger: logger.With("component", "api"),
	}
	s.httpServer = &http.Server{Addr: addr, Handler: s.Router()}
	return s
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/instances", s.listInstances).Methods("GET")
	r.HandleFunc("/api/instances", s.createInstance).Methods("POST")
	r.HandleFunc("/api/instances/{id}", s.deleteInstance).Methods("DELETE")
	r.HandleFunc("/api/instances/{id}/start", s.startInstance).Methods("POST")
	r.HandleFunc("/api/instances/{id}/stop", s.stopInstance).Methods("POST")
	r.HandleFunc("/api/instances/{id}/command", s.sendCommand).Methods("POST")
	r.HandleFunc("/api/instances/{id}/logs", s.instanceLogs).Methods("GET")
	r.HandleFunc("/api/instances/{id}/rename", s.renameInstance).Methods("POST")
	r.HandleFunc("/api/instances/{id}/port", s.changePort).Methods("POST")
	r.HandleFunc("/api/instances/{id}/proxy", s.changeProxy).Methods("POST")
	r.HandleFunc("/api/instances/{id}/autostart", s.changeAutoStart).Methods("POST")

	r.HandleFunc("/api/instances/{id}/audit", s.instanceAudit).Methods("GET")

	r.HandleFunc("/api/audit", s.recentAudit).Methods("GET")

	r.HandleFunc("/api/check/port", s.checkPort).Methods("GET")
	r.HandleFunc("/api/check/name", s.checkName).Methods("GET")

	r.HandleFunc("/api/logs/ws", s.observeLogs).Methods("GET")

	r.HandleFunc("/api/redis/start", s.startRedis).Methods("POST")
	r.HandleFunc("/api/redis/stop", s.stopRedis).Methods("POST")
	r.HandleFunc("/api/redis/keepalive", s.getKeepAlive).Methods("GET")
	r.HandleFunc("/api/redis/keepalive", s.setKeepAlive).Methods("PUT")

	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// instanceView is an instance record joined with its live status and the
// port it would actually use.
type instanceView struct {
	registry.InstanceRecord
	Status        supervisor.Status `json:"status"`
	EffectivePort int               `json:"effectivePort"`
}

func (s *Server) view(rec registry.InstanceRecord) instanceView {
	return instanceView{
		InstanceRecord: rec,
		Status:         s.sup.Status(rec.ID),
		EffectivePort:  ports.EffectivePort(rec),
	}
}

func (s *Server) listInstances(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	views := make([]instanceView, 0, len(records))
	for _, rec := range records {
		views = append(views, s.view(rec))
	}
	s.respond(w, r, views, nil, http.StatusOK)
}

type createInstanceRequest struct {
	Name      string                `json:"name"`
	Path      string                `json:"path"`
	Type      registry.InstanceType `json:"type"`
	Port      int                   `json:"port"`
	Proxy     *registry.ProxyConfig `json:"proxy"`
	AutoStart bool                  `json:"autoStart"`
	RedisMode registry.RedisMode    `json:"redisMode"`
}

func (s *Server) createInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Path == "" {
		s.respond(w, r, nil, errors.New("name and path are required"), http.StatusBadRequest)
		return
	}
	if !req.Type.Valid() {
		s.respond(w, r, nil, fmt.Errorf("unknown instance type %q", req.Type), http.StatusBadRequest)
		return
	}
	if req.RedisMode == "" {
		req.RedisMode = registry.RedisShared
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ports.ValidateName(records, "", req.Name); err != nil {
		s.fail(w, r, err)
		return
	}

	rec := registry.InstanceRecord{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Path:      req.Path,
		Type:      req.Type,
		Port:      req.Port,
		Proxy:     req.Proxy,
		AutoStart: req.AutoStart,
		RedisMode: req.RedisMode,
	}

	// Uniqueness is on effective ports: an omitted port still resolves
	// through the on-disk config and type default, and must not collide
	// with any other instance's resolution.
	effective := ports.EffectivePort(rec)
	if name := ports.FindUser(records, "", effective); name != "" {
		s.fail(w, r, &ports.PortConflictError{Port: effective, UsedBy: name})
		return
	}
	if req.Port > 0 && !ports.Probe(req.Port) {
		s.fail(w, r, &ports.PortUnavailableError{Port: req.Port})
		return
	}

	if err := s.store.Create(rec); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventInstanceCreated, rec.ID, rec.Name)
	s.respond(w, r, s.view(rec), nil, http.StatusOK)
}

func (s *Server) deleteInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	// A running instance is torn down before its record disappears.
	if err := s.sup.Stop(id); err != nil && !errors.Is(err, supervisor.ErrNotRunning) {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventInstanceDeleted, id, "")
	s.respond(w, r, map[string]bool{"deleted": true}, nil, http.StatusOK)
}

func (s *Server) startInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.sup.Start(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventInstanceStarted, id, "")
	s.respond(w, r, map[string]string{"status": string(s.sup.Status(id))}, nil, http.StatusOK)
}

func (s *Server) stopInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.sup.Stop(id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventInstanceStopped, id, "")
	s.respond(w, r, map[string]string{"status": string(supervisor.StatusStopped)}, nil, http.StatusOK)
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		s.respond(w, r, nil, errors.New("command is required"), http.StatusBadRequest)
		return
	}
	if err := s.sup.SendCommand(id, req.Command); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventCommandSent, id, req.Command)
	s.respond(w, r, map[string]bool{"sent": true}, nil, http.StatusOK)
}

func (s *Server) instanceLogs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Get(id); err != nil {
		s.fail(w, r, err)
		return
	}
	lines := s.hub.History(id)
	if lines == nil {
		lines = []string{}
	}
	s.respond(w, r, map[string][]string{"lines": lines}, nil, http.StatusOK)
}

func (s *Server) renameInstance(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		s.respond(w, r, nil, errors.New("name is required"), http.StatusBadRequest)
		return
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ports.ValidateName(records, id, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Rename(id, req.Name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventInstanceRenamed, id, req.Name)
	s.respond(w, r, map[string]bool{"renamed": true}, nil, http.StatusOK)
}

func (s *Server) changePort(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if req.Port <= 0 || req.Port > 65535 {
		s.respond(w, r, nil, fmt.Errorf("invalid port %d", req.Port), http.StatusBadRequest)
		return
	}

	s.mutations.Lock()
	defer s.mutations.Unlock()

	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := ports.ValidatePort(records, id, req.Port, s.sup.IsRunning(id)); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.UpdatePort(id, req.Port); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, map[string]int{"port": req.Port}, nil, http.StatusOK)
}

func (s *Server) changeProxy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Proxy *registry.ProxyConfig `json:"proxy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateProxy(id, req.Proxy); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, map[string]bool{"updated": true}, nil, http.StatusOK)
}

func (s *Server) changeAutoStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		AutoStart bool `json:"autoStart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if err := s.store.SetAutoStart(id, req.AutoStart); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, map[string]bool{"autoStart": req.AutoStart}, nil, http.StatusOK)
}

// auditLimit parses the limit query parameter, defaulting to 100.
func auditLimit(r *http.Request) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 100
}

func (s *Server) recentAudit(w http.ResponseWriter, r *http.Request) {
	limit := auditLimit(r)
	var (
		events []audit.AuditEvent
		err    error
	)
	if typ := r.URL.Query().Get("type"); typ != "" {
		events, err = s.audit.GetEventsByType(audit.EventType(typ), limit)
	} else {
		events, err = s.audit.GetRecentEvents(limit)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []audit.AuditEvent{}
	}
	s.respond(w, r, events, nil, http.StatusOK)
}

func (s *Server) instanceAudit(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.store.Get(id); err != nil {
		s.fail(w, r, err)
		return
	}
	events, err := s.audit.GetEventsByInstance(id, auditLimit(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if events == nil {
		events = []audit.AuditEvent{}
	}
	s.respond(w, r, events, nil, http.StatusOK)
}

func (s *Server) checkPort(w http.ResponseWriter, r *http.Request) {
	port, err := strconv.Atoi(r.URL.Query().Get("port"))
	if err != nil || port <= 0 || port > 65535 {
		s.respond(w, r, nil, errors.New("port query parameter must be a valid port"), http.StatusBadRequest)
		return
	}
	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}

	resp := map[string]interface{}{"available": true}
	if name := ports.FindUser(records, "", port); name != "" {
		resp["available"] = false
		resp["usedBy"] = name
	} else if !ports.Probe(port) {
		resp["available"] = false
	}
	s.respond(w, r, resp, nil, http.StatusOK)
}

func (s *Server) checkName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		s.respond(w, r, nil, errors.New("name query parameter is required"), http.StatusBadRequest)
		return
	}
	records, err := s.store.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	available := ports.ValidateName(records, "", name) == nil
	s.respond(w, r, map[string]bool{"available": available}, nil, http.StatusOK)
}

func (s *Server) startRedis(w http.ResponseWriter, r *http.Request) {
	if err := s.redis.Start(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventRedisStarted, "", "")
	s.respond(w, r, map[string]bool{"running": true}, nil, http.StatusOK)
}

func (s *Server) stopRedis(w http.ResponseWriter, r *http.Request) {
	if err := s.redis.Stop(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.auditLog(audit.EventRedisStopped, "", "manual")
	s.respond(w, r, map[string]bool{"running": false}, nil, http.StatusOK)
}

func (s *Server) getKeepAlive(w http.ResponseWriter, r *http.Request) {
	keepAlive, err := s.store.RedisKeepAlive()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, map[string]bool{"keepAlive": keepAlive}, nil, http.StatusOK)
}

func (s *Server) setKeepAlive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeepAlive bool `json:"keepAlive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, r, nil, fmt.Errorf("decode request: %w", err), http.StatusBadRequest)
		return
	}
	if err := s.store.SetRedisKeepAlive(req.KeepAlive); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, map[string]bool{"keepAlive": req.KeepAlive}, nil, http.StatusOK)
}

// auditLog records an action best-effort; a failed audit write never fails
// the request that triggered it.
func (s *Server) auditLog(event audit.EventType, instanceID, detail string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(event, instanceID, detail); err != nil {
		s.logger.Warn("audit write failed", "event", string(event), "error", err)
	}
}
