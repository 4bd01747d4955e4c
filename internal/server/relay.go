package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"labmonitor/pkg/logger"
)

// RelayReply is the JSON payload of the health-proxy endpoint.
type RelayReply struct {
	Accessible bool   `json:"accessible"`
	Status     int    `json:"status,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Relay implements the same-origin health-proxy endpoint that browser
// dashboards use to check cross-origin targets they cannot reach directly.
// Any HTTP response from the target counts as accessible; only transport
// failures report accessible:false.
type Relay struct {
	client  *http.Client
	timeout time.Duration
	log     logger.Logger
}

// NewRelay creates a relay with the given per-request timeout. Certificate
// validation is relaxed, matching the monitor's own probing of homelab hosts.
func NewRelay(timeout time.Duration, log logger.Logger) *Relay {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	return &Relay{
		client:  &http.Client{Transport: transport},
		timeout: timeout,
		log:     log,
	}
}

func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		http.Error(w, "url parameter is required", http.StatusBadRequest)
		return
	}
	target, err := url.Parse(raw)
	if err != nil || !target.IsAbs() || target.Host == "" {
		http.Error(w, "url parameter must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		http.Error(w, "url parameter must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, rl.probe(r.Context(), target.String()))
}

// probe tries HEAD first and falls back to GET for targets that reject HEAD.
func (rl *Relay) probe(ctx context.Context, target string) RelayReply {
	ctx, cancel := context.WithTimeout(ctx, rl.timeout)
	defer cancel()

	resp, err := rl.request(ctx, http.MethodHead, target)
	if err == nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = rl.request(ctx, http.MethodGet, target)
	}
	if err != nil {
		rl.log.Debug().Str("target", target).Err(err).Msg("relay probe failed")
		return RelayReply{Accessible: false, Message: err.Error()}
	}
	return RelayReply{
		Accessible: true,
		Status:     resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

func (rl *Relay) request(ctx context.Context, method, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := rl.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	return resp, nil
}
