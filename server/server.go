package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"outline_assistant/generator"
	"outline_assistant/hostview"
	"outline_assistant/messaging"
	"outline_assistant/metrics"
	"outline_assistant/outline"
	"outline_assistant/sidebar"
)

const (
	maxBodyBytes   = 1 << 20
	maxUploadBytes = 8 << 20
)

// Options tunes a Server. Zero values pick defaults.
type Options struct {
	// APIKey is handed out by /api/secret. Empty means the relay answers 500.
	APIKey string
	// AllowOrigin is echoed in CORS headers; empty allows any origin.
	AllowOrigin     string
	GenerateTimeout time.Duration
	Logger          *log.Logger
	Verbose         bool
}

type Server struct {
	gen      sidebar.OutlineGenerator
	opts     Options
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*sidebar.Controller
}

func New(gen sidebar.OutlineGenerator, opts Options) (*Server, error) {
	if gen == nil {
		return nil, errors.New("outline generator required")
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		gen:    gen,
		opts:   opts,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[string]*sidebar.Controller),
	}, nil
}

func (s *Server) infof(format string, args ...interface{}) {
	if !s.opts.Verbose {
		return
	}
	s.logger.Printf("[INFO] [server] "+format, args...)
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/secret", s.handleSecret)
	mux.HandleFunc("POST /api/generate-outline", s.handleGenerateOutline)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("OPTIONS /api/", s.handlePreflight)
	mux.HandleFunc("GET /ws", s.handleWS)
	return s.logMiddleware(s.cors(mux))
}

// Sessions reports how many sidebar connections are open.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// --- Handlers ---

type generateReq struct {
	Text           string                   `json:"text"`
	CursorPosition *hostview.CursorPosition `json:"cursor_position,omitempty"`
}

type generateResp struct {
	Outline    outline.Outline  `json:"outline"`
	Statistics metrics.Snapshot `json:"statistics"`
}

type analyzeReq struct {
	Text string `json:"text"`
}

type uploadResult struct {
	Filename   string           `json:"filename"`
	Statistics metrics.Snapshot `json:"statistics"`
}

type uploadResp struct {
	Message string         `json:"message"`
	Results []uploadResult `json:"results"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSecret(w http.ResponseWriter, _ *http.Request) {
	if s.opts.APIKey == "" {
		writeError(w, http.StatusInternalServerError, "API key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": s.opts.APIKey})
}

func (s *Server) handleGenerateOutline(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.GenerateTimeout)
	defer cancel()
	o, err := s.gen.Generate(ctx, req.Text, req.CursorPosition)
	if err != nil {
		status := http.StatusBadGateway
		var genErr *generator.GenerationError
		if errors.As(err, &genErr) && genErr.Status == http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		writeError(w, status, fmt.Sprintf("Error generating outline: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, generateResp{Outline: o, Statistics: metrics.Compute(req.Text)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Request must be JSON")
		return
	}
	writeJSON(w, http.StatusOK, metrics.Compute(req.Text))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "No files provided")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "No files selected")
		return
	}

	resp := uploadResp{Message: "Files processed successfully", Results: []uploadResult{}}
	for _, fh := range files {
		name := filepath.Base(fh.Filename)
		if !allowedFile(name) {
			continue
		}
		text, err := readUpload(fh)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file %s: %v", name, err))
			return
		}
		resp.Results = append(resp.Results, uploadResult{Filename: name, Statistics: metrics.Compute(text)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleWS upgrades to a websocket whose peer is the host page. The server
// plays the sidebar for that page for as long as the connection lives.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[WARN] [server] websocket upgrade: %v", err)
		return
	}
	id := uuid.NewString()
	conn := messaging.NewWSConn(ws)
	ep := messaging.NewEndpoint(conn, s.logger, s.opts.Verbose)
	ctrl, err := sidebar.NewController(ep, s.gen, nil, sidebar.ControllerConfig{
		DocID:   r.URL.Query().Get("docId"),
		Logger:  s.logger,
		Verbose: s.opts.Verbose,
	})
	if err != nil {
		s.logger.Printf("[WARN] [server] %v", err)
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.track(id, ctrl)
	defer s.untrack(id)
	s.infof("sidebar %s connected", id)

	runErr := make(chan error, 1)
	go func() { runErr <- ep.Run(ctx) }()
	if err := ctrl.Start(ctx); err != nil {
		s.logger.Printf("[WARN] [server] sidebar %s: %v", id, err)
		_ = ep.Close()
		<-runErr
		return
	}
	if err := <-runErr; err != nil && !errors.Is(err, messaging.ErrClosed) {
		s.logger.Printf("[WARN] [server] sidebar %s: %v", id, err)
	}
	_ = ep.Close()
	s.infof("sidebar %s disconnected", id)
}

func (s *Server) track(id string, c *sidebar.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = c
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// --- Helpers ---

func allowedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func readUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(r *http.Request, v any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("content type %s", ct)
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := s.opts.AllowOrigin
		if origin == "" {
			origin = "*"
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		s.infof("%s %s %d %s", r.Method, path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
