package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"labmonitor/internal/models"
)

// CheckServiceHealth runs one probe against a service and always returns a
// result; every failure inside the fallback chain is converted into a result
// with status error or warning.
//
// Strategy selection follows the target's origin relative to the monitor's
// own origin: same-origin targets get a direct probe (or the advanced probe
// when the descriptor carries a structured configuration); cross-origin
// targets are checked through the proxy relay first, falling back to a
// favicon connectivity probe when the relay call itself fails.
func (m *Monitor) CheckServiceHealth(ctx context.Context, svc models.ServiceDescriptor) models.HealthResult {
	target := svc.ProbeURL()
	parsed, err := url.Parse(target)
	if err == nil && (parsed.Scheme == "" || parsed.Host == "") {
		err = errors.New("missing scheme or host")
	}
	if err != nil {
		return m.newResult(svc, models.StatusError, fmt.Sprintf("invalid url %q: %v", target, err), models.MethodDirect, nil)
	}

	if m.sameOrigin(parsed) {
		if svc.HealthCheck != nil && svc.HealthCheck.Probe != nil {
			return m.checkAdvanced(ctx, svc, target, *svc.HealthCheck.Probe)
		}
		return m.checkDirect(ctx, svc, target)
	}

	if result, ok := m.checkProxy(ctx, svc, target); ok {
		return result
	}
	return m.checkImage(ctx, svc, parsed)
}

// checkDirect issues a HEAD request against the target. 2xx is healthy, 5xx
// and transport failures are errors, anything in between is a warning.
func (m *Monitor) checkDirect(ctx context.Context, svc models.ServiceDescriptor, target string) models.HealthResult {
	ctx, cancel := context.WithTimeout(ctx, m.probing.Timeout())
	defer cancel()

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return m.newResult(svc, models.StatusError, fmt.Sprintf("build request: %v", err), models.MethodDirect, nil)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return m.newResult(svc, models.StatusError, requestErrorMessage(err, m.probing.Timeout()), models.MethodDirect, nil)
	}
	defer resp.Body.Close()

	elapsed := elapsedMS(started)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return m.newResult(svc, models.StatusHealthy, fmt.Sprintf("HTTP %d", resp.StatusCode), models.MethodDirect, &elapsed)
	case resp.StatusCode >= 500:
		return m.newResult(svc, models.StatusError, fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), models.MethodDirect, &elapsed)
	default:
		return m.newResult(svc, models.StatusWarning, fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), models.MethodDirect, &elapsed)
	}
}

// checkAdvanced runs a structured probe with configurable method, headers,
// body and expected status list, retrying with linear backoff.
func (m *Monitor) checkAdvanced(ctx context.Context, svc models.ServiceDescriptor, target string, probe models.ProbeConfig) models.HealthResult {
	method := probe.Method
	if method == "" {
		method = http.MethodGet
	}
	timeout := m.probing.Timeout()
	if probe.TimeoutMS > 0 {
		timeout = time.Duration(probe.TimeoutMS) * time.Millisecond
	}
	retries := m.probing.MaxRetries
	if probe.MaxRetries > 0 {
		retries = probe.MaxRetries
	}
	retryDelay := m.probing.RetryDelay()
	if probe.RetryDelayMS > 0 {
		retryDelay = time.Duration(probe.RetryDelayMS) * time.Millisecond
	}

	var lastFailure string
	for attempt := 1; attempt <= retries+1; attempt++ {
		result, failure := m.advancedAttempt(ctx, svc, target, method, timeout, probe)
		if failure == "" {
			return result
		}
		lastFailure = failure

		if attempt > retries {
			break
		}
		// Linear backoff: retryDelay grows with the attempt number.
		select {
		case <-time.After(retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return m.newResult(svc, models.StatusError, lastFailure, models.MethodAdvanced, nil)
		}
	}
	return m.newResult(svc, models.StatusError, fmt.Sprintf("%s (after %d attempts)", lastFailure, retries+1), models.MethodAdvanced, nil)
}

func (m *Monitor) advancedAttempt(ctx context.Context, svc models.ServiceDescriptor, target, method string, timeout time.Duration, probe models.ProbeConfig) (models.HealthResult, string) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if probe.Body != "" {
		body = strings.NewReader(probe.Body)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, body)
	if err != nil {
		return models.HealthResult{}, fmt.Sprintf("build request: %v", err)
	}
	for key, value := range probe.Headers {
		req.Header.Set(key, value)
	}

	started := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return models.HealthResult{}, requestErrorMessage(err, timeout)
	}
	defer resp.Body.Close()

	if !probe.StatusExpected(resp.StatusCode) {
		return models.HealthResult{}, fmt.Sprintf("unexpected HTTP %d", resp.StatusCode)
	}
	elapsed := elapsedMS(started)
	return m.newResult(svc, models.StatusHealthy, fmt.Sprintf("HTTP %d", resp.StatusCode), models.MethodAdvanced, &elapsed), ""
}

type proxyReply struct {
	Accessible bool            `json:"accessible"`
	Message    string          `json:"message"`
	Status     json.RawMessage `json:"status"`
}

// checkProxy delegates the reachability check to the same-origin relay
// endpoint. The second return value is false when the relay call itself
// failed; that failure is swallowed so the caller can fall back.
func (m *Monitor) checkProxy(ctx context.Context, svc models.ServiceDescriptor, target string) (models.HealthResult, bool) {
	proxyURL, err := m.proxyURL(target)
	if err != nil {
		m.log.Debug().Str("service", svc.ID).Err(err).Msg("proxy endpoint unusable")
		return models.HealthResult{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, m.probing.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, proxyURL, nil)
	if err != nil {
		return models.HealthResult{}, false
	}

	started := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		m.log.Debug().Str("service", svc.ID).Err(err).Msg("proxy probe failed")
		return models.HealthResult{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.log.Debug().Str("service", svc.ID).Int("status", resp.StatusCode).Msg("proxy returned non-OK")
		return models.HealthResult{}, false
	}

	var reply proxyReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&reply); err != nil {
		m.log.Debug().Str("service", svc.ID).Err(err).Msg("proxy reply unreadable")
		return models.HealthResult{}, false
	}

	elapsed := elapsedMS(started)
	if reply.Accessible {
		message := reply.Message
		if message == "" {
			message = "reachable via proxy"
		}
		return m.newResult(svc, models.StatusHealthy, message, models.MethodProxy, &elapsed), true
	}
	message := reply.Message
	if message == "" {
		message = "unreachable via proxy"
	}
	return m.newResult(svc, models.StatusError, message, models.MethodProxy, &elapsed), true
}

// checkImage is the server-side stand-in for the browser image ping: fetch
// the target origin's favicon with a cache-busting query and relaxed TLS.
// A missing or broken favicon does not prove the service is down, so
// anything short of a timeout resolves to healthy or warning.
func (m *Monitor) checkImage(ctx context.Context, svc models.ServiceDescriptor, target *url.URL) models.HealthResult {
	faviconURL := fmt.Sprintf("%s://%s/favicon.ico?_=%d", target.Scheme, target.Host, time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, m.probing.Timeout())
	defer cancel()

	started := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, faviconURL, nil)
	if err != nil {
		return m.newResult(svc, models.StatusError, fmt.Sprintf("build request: %v", err), models.MethodImageTest, nil)
	}

	resp, err := m.insecureClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return m.newResult(svc, models.StatusError, requestErrorMessage(err, m.probing.Timeout()), models.MethodImageTest, nil)
		}
		return m.newResult(svc, models.StatusWarning, fmt.Sprintf("may be accessible, favicon fetch failed: %v", err), models.MethodImageTest, nil)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	elapsed := elapsedMS(started)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return m.newResult(svc, models.StatusHealthy, "appears accessible", models.MethodImageTest, &elapsed)
	}
	return m.newResult(svc, models.StatusWarning, fmt.Sprintf("may be accessible, favicon returned HTTP %d", resp.StatusCode), models.MethodImageTest, &elapsed)
}

func (m *Monitor) proxyURL(target string) (string, error) {
	endpoint := m.probing.ProxyEndpoint
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse proxy endpoint: %w", err)
	}
	if !parsed.IsAbs() {
		parsed = m.origin.ResolveReference(parsed)
	}
	query := parsed.Query()
	query.Set("url", target)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (m *Monitor) sameOrigin(target *url.URL) bool {
	return strings.EqualFold(target.Scheme, m.origin.Scheme) &&
		strings.EqualFold(originHost(target), originHost(m.origin))
}

// originHost normalises implicit default ports so that
// https://host and https://host:443 compare equal.
func originHost(u *url.URL) string {
	host := strings.ToLower(u.Host)
	switch u.Scheme {
	case "http":
		return strings.TrimSuffix(host, ":80")
	case "https":
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

func (m *Monitor) newResult(svc models.ServiceDescriptor, status models.Status, message string, method models.Method, responseMS *float64) models.HealthResult {
	return models.HealthResult{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		Status:         status,
		Message:        message,
		ResponseTimeMS: responseMS,
		Method:         method,
		Timestamp:      time.Now().UTC(),
	}
}

func elapsedMS(started time.Time) float64 {
	return float64(time.Since(started).Microseconds()) / 1000
}

func requestErrorMessage(err error, timeout time.Duration) string {
	if isTimeout(err) {
		return fmt.Sprintf("timeout after %s", timeout)
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
