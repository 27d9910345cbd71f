package pushserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/beingmushfiq/Track-R/metrics"
	"github.com/beingmushfiq/Track-R/parser"
	"github.com/beingmushfiq/Track-R/queue"
	"github.com/beingmushfiq/Track-R/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	MaxBatchSize        = 100
	DefaultMaxBodyBytes = 1 << 20
)

type Config struct {
	Addr         string
	MaxBodyBytes int64
}

// StatsSource reports the live state of the socket tier.
type StatsSource interface {
	Stats() server.Stats
}

type PushServer struct {
	cfg       Config
	publisher queue.Publisher
	stats     StatsSource
	validate  *validator.Validate
	log       *zap.Logger
	handler   http.Handler
	started   time.Time
	now       func() time.Time

	mu      sync.Mutex
	srv     *http.Server
	ln      net.Listener
	errChan chan error
}

func NewPushServer(cfg Config, publisher queue.Publisher, stats StatsSource, logger *zap.Logger) *PushServer {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if stats == nil {
		stats = server.StatsFunc(func() server.Stats { return server.Stats{} })
	}
	ps := &PushServer{
		cfg:       cfg,
		publisher: publisher,
		stats:     stats,
		validate:  validator.New(),
		log:       logger,
		started:   time.Now(),
		now:       time.Now,
		errChan:   make(chan error, 1),
	}
	ps.handler = ps.routes()
	return ps
}

func (ps *PushServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(ps.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", ps.health)
	r.Get("/api/stats", ps.statsHandler)
	r.Post("/api/device/push", ps.push)
	r.Post("/api/device/push/batch", ps.pushBatch)
	r.Handle("/metrics", promhttp.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("Endpoint not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("Endpoint not found"))
	})
	return r
}

// Handler exposes the router, mainly for tests.
func (ps *PushServer) Handler() http.Handler {
	return ps.handler
}

func (ps *PushServer) Start() error {
	ln, err := net.Listen("tcp", ps.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:        ps.handler,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	ps.mu.Lock()
	ps.srv = srv
	ps.ln = ln
	ps.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ps.log.Error("http push server failed", zap.Error(err))
			select {
			case ps.errChan <- err:
			default:
			}
		}
	}()
	ps.log.Info("http push server started", zap.String("ListenAddress", ln.Addr().String()))
	return nil
}

func (ps *PushServer) Addr() net.Addr {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.ln == nil {
		return nil
	}
	return ps.ln.Addr()
}

func (ps *PushServer) Errors() <-chan error {
	return ps.errChan
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (ps *PushServer) Shutdown(ctx context.Context) error {
	ps.mu.Lock()
	srv := ps.srv
	ps.mu.Unlock()
	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	ps.log.Info("http push server stopped")
	return err
}

func (ps *PushServer) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": ps.now().UTC(),
	})
}

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
}

type statsResponse struct {
	Uptime            float64              `json:"uptime"`
	Memory            memoryStats          `json:"memory"`
	Goroutines        int                  `json:"goroutines"`
	ActiveConnections int                  `json:"activeConnections"`
	Bindings          []server.BindingInfo `json:"bindings"`
	Sessions          []server.SessionInfo `json:"sessions"`
	Timestamp         time.Time            `json:"timestamp"`
}

func (ps *PushServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st := ps.stats.Stats()
	now := ps.now()
	writeJSON(w, http.StatusOK, statsResponse{
		Uptime: now.Sub(ps.started).Seconds(),
		Memory: memoryStats{
			Alloc:      ms.Alloc,
			TotalAlloc: ms.TotalAlloc,
			Sys:        ms.Sys,
			HeapInuse:  ms.HeapInuse,
			NumGC:      ms.NumGC,
		},
		Goroutines:        runtime.NumGoroutine(),
		ActiveConnections: st.ActiveConnections,
		Bindings:          st.Bindings,
		Sessions:          st.Sessions,
		Timestamp:         now.UTC(),
	})
}

func (ps *PushServer) push(w http.ResponseWriter, r *http.Request) {
	const endpoint = "push"
	var req PushRequest
	if status, msg := ps.decodeBody(w, r, &req); status != 0 {
		ps.reply(w, endpoint, status, errorBody(msg))
		return
	}
	if err := ps.validate.Struct(&req); err != nil {
		ps.reply(w, endpoint, http.StatusBadRequest, errorBody(validationMessage(err)))
		return
	}
	rec := req.toRecord(parser.ProtocolHTTP, ps.now(), clientIP(r))
	if rec == nil {
		ps.reply(w, endpoint, http.StatusBadRequest, errorBody("Invalid position"))
		return
	}
	if err := ps.publisher.PushGpsData(r.Context(), rec); err != nil {
		ps.log.Error("queue pushed position failed", zap.String("imei", rec.DeviceID), zap.Error(err))
		ps.reply(w, endpoint, http.StatusInternalServerError, errorBody("Failed to queue data"))
		return
	}
	ps.log.Info("position received over http", zap.String("imei", rec.DeviceID))
	ps.reply(w, endpoint, http.StatusOK, map[string]any{
		"success": true,
		"message": "Data received",
	})
}

type batchRequest struct {
	Data json.RawMessage `json:"data"`
}

type batchResponse struct {
	Success    bool `json:"success"`
	Total      int  `json:"total"`
	Successful int  `json:"successful"`
	Failed     int  `json:"failed"`
}

func (ps *PushServer) pushBatch(w http.ResponseWriter, r *http.Request) {
	const endpoint = "push_batch"
	var body batchRequest
	if status, msg := ps.decodeBody(w, r, &body); status != 0 {
		ps.reply(w, endpoint, status, errorBody(msg))
		return
	}
	var items []json.RawMessage
	if len(body.Data) == 0 || body.Data[0] != '[' || json.Unmarshal(body.Data, &items) != nil {
		ps.reply(w, endpoint, http.StatusBadRequest, errorBody("Data must be an array"))
		return
	}
	if len(items) == 0 {
		ps.reply(w, endpoint, http.StatusBadRequest, errorBody("Data array is empty"))
		return
	}
	if len(items) > MaxBatchSize {
		ps.reply(w, endpoint, http.StatusBadRequest, errorBody("Maximum 100 records per batch"))
		return
	}

	now := ps.now()
	ip := clientIP(r)
	resp := batchResponse{Success: true, Total: len(items)}
	for i, raw := range items {
		var req PushRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			ps.log.Debug("batch item not decoded", zap.Int("index", i), zap.Error(err))
			resp.Failed++
			continue
		}
		if err := ps.validate.Struct(&req); err != nil {
			ps.log.Debug("batch item rejected", zap.Int("index", i), zap.String("reason", validationMessage(err)))
			resp.Failed++
			continue
		}
		rec := req.toRecord(parser.ProtocolHTTPBatch, now, ip)
		if rec == nil {
			resp.Failed++
			continue
		}
		if err := ps.publisher.PushGpsData(r.Context(), rec); err != nil {
			ps.log.Warn("queue batch item failed", zap.String("imei", rec.DeviceID), zap.Error(err))
			resp.Failed++
			continue
		}
		resp.Successful++
	}
	ps.log.Info("batch received over http",
		zap.Int("total", resp.Total),
		zap.Int("successful", resp.Successful),
		zap.Int("failed", resp.Failed),
	)
	ps.reply(w, endpoint, http.StatusOK, resp)
}

// decodeBody reads a bounded JSON body into v. A non-zero status means the
// request must be rejected with msg.
func (ps *PushServer) decodeBody(w http.ResponseWriter, r *http.Request, v any) (int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, ps.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, "Request body too large"
		}
		return http.StatusBadRequest, "Invalid JSON"
	}
	return 0, ""
}

func (ps *PushServer) reply(w http.ResponseWriter, endpoint string, status int, v any) {
	metrics.PushRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	writeJSON(w, status, v)
}

func (ps *PushServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		ps.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
