// Package api implements the auditor's HTTP JSON API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/notemesh/notemesh-audit/internal/audit"
	nlog "github.com/notemesh/notemesh-audit/internal/log"
	"github.com/notemesh/notemesh-audit/internal/spendnet"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Config controls IP filtering and CORS. The zero value allows all IPs
// and disables CORS.
type Config struct {
	AllowedIPs  []string
	CORSOrigins []string
}

// Server serves the audit DAG over HTTP.
type Server struct {
	addr        string
	crawler     *audit.Crawler
	node        *spendnet.Node // nil when running without a network
	server      *http.Server
	ln          net.Listener
	logger      zerolog.Logger
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates an API server reading DAG state through crawler. node may
// be nil; /status then omits peer info and POST /spend skips the gossip
// announcement.
func New(addr string, crawler *audit.Crawler, node *spendnet.Node, cfg ...Config) *Server {
	s := &Server{
		addr:    addr,
		crawler: crawler,
		node:    node,
		logger:  nlog.API,
	}
	if len(cfg) > 0 {
		s.allowedNets = parseAllowedIPs(cfg[0].AllowedIPs)
		s.corsOrigins = cfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /utxos", s.handleUtxos)
	mux.HandleFunc("GET /faults", s.handleFaults)
	mux.HandleFunc("GET /faults/{addr}", s.handleFaultsAt)
	mux.HandleFunc("GET /spend/{addr}", s.handleSpendAt)
	mux.HandleFunc("POST /spend", s.handleSubmitSpend)
	mux.HandleFunc("GET /dag.dot", s.handleDot)

	s.server = &http.Server{
		Handler:      s.filter(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return s
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// filter wraps the mux with IP filtering and CORS handling.
func (s *Server) filter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}
	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResult{Error: fmt.Sprintf(format, args...)})
}
