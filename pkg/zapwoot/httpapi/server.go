// Package httpapi implements the HTTP control surface of the bridge:
// session status, QR pairing code, outbound sends and static media serving.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// SessionAPI defines the interface the HTTP server uses to access the
// messaging session. This avoids a direct dependency on the whatsapp package.
type SessionAPI interface {
	// Status returns the current connection state as a string.
	Status() string

	// PairingCode returns the current QR pairing code, or "" if none.
	PairingCode() string

	// HasSession reports whether a messaging session has been established.
	HasSession() bool

	// IsConnected reports whether the session is currently connected.
	IsConnected() bool

	// SendText sends a plain text message to a phone number.
	SendText(ctx context.Context, phone, message string) error
}

// StatsFunc returns a snapshot of bridge counters for the status endpoint.
type StatsFunc func() map[string]int64

// Config holds HTTP API configuration.
type Config struct {
	// Address is the listen address (default: ":3000").
	Address string `yaml:"address"`
}

// DefaultConfig returns the default HTTP API configuration.
func DefaultConfig() Config {
	return Config{
		Address: ":3000",
	}
}

// Server is the bridge control HTTP server.
type Server struct {
	cfg      Config
	api      SessionAPI
	stats    StatsFunc
	mediaDir string
	logger   *slog.Logger
	server   *http.Server
	started  time.Time
}

// New creates a new HTTP API server. mediaDir is the directory served
// under /media/; stats may be nil.
func New(cfg Config, api SessionAPI, stats StatsFunc, mediaDir string, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = ":3000"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg:      cfg,
		api:      api,
		stats:    stats,
		mediaDir: mediaDir,
		logger:   logger.With("component", "httpapi"),
	}
}

// Start begins serving the HTTP API.
func (s *Server) Start(ctx context.Context) error {
	s.started = time.Now()
	s.server = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("HTTP API starting", "address", s.cfg.Address)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
		s.logger.Info("HTTP API stopped")
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /qr", s.handleQR)
	mux.HandleFunc("POST /send", s.handleSend)

	if s.mediaDir != "" {
		mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.mediaDir))))
	}

	return mux
}

// ---------- Handlers ----------

// statusResponse is the GET /status payload.
type statusResponse struct {
	Status        string           `json:"status"`
	PairingCode   string           `json:"pairingCode"`
	HasSession    bool             `json:"hasSession"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
	Counters      map[string]int64 `json:"counters,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        s.api.Status(),
		PairingCode:   s.api.PairingCode(),
		HasSession:    s.api.HasSession(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.stats != nil {
		resp.Counters = s.stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQR renders the current pairing code as a PNG, so the code can be
// scanned straight from a browser.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	code := s.api.PairingCode()
	if code == "" {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "No QR code available",
		})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("failed to encode QR code", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to render QR code",
		})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// sendRequest is the POST /send body.
type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "phone and message are required",
		})
		return
	}

	if !s.api.IsConnected() {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "WhatsApp not connected",
		})
		return
	}

	if err := s.api.SendText(r.Context(), req.Phone, req.Message); err != nil {
		s.logger.Error("outbound send failed", "phone", req.Phone, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"phone":   req.Phone,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
