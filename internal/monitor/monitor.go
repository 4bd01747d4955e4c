package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"labmonitor/internal/config"
	"labmonitor/internal/history"
	"labmonitor/internal/metrics"
	"labmonitor/internal/models"
	"labmonitor/pkg/logger"
)

const subscriberBuffer = 16

// Monitor tracks reachability of registered services using tiered probing.
// It owns the current-status map and per-service history; all state is
// guarded for concurrent access and cleared on Stop.
type Monitor struct {
	probing config.Probing
	origin  *url.URL
	log     logger.Logger
	rec     *metrics.Recorder

	client         *http.Client
	insecureClient *http.Client

	mu       sync.RWMutex
	services map[string]models.ServiceDescriptor
	current  map[string]models.HealthResult
	subs     map[int]chan models.Event
	nextSub  int
	started  bool
	stopped  bool

	hist *history.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a monitor that considers origin its own serving origin for
// same/cross-origin routing decisions.
func New(origin string, probing config.Probing, log logger.Logger, rec *metrics.Recorder) (*Monitor, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("origin %q must include scheme and host", origin)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	// Favicon probes accept self-signed certificates: a homelab box with an
	// untrusted cert is still a reachable box.
	insecureTransport := transport.Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		probing:        probing,
		origin:         parsed,
		log:            log,
		rec:            rec,
		client:         &http.Client{Transport: transport},
		insecureClient: &http.Client{Transport: insecureTransport},
		services:       make(map[string]models.ServiceDescriptor),
		current:        make(map[string]models.HealthResult),
		subs:           make(map[int]chan models.Event),
		hist:           history.NewStore(probing.MaxHistorySize),
		ctx:            ctx,
		cancel:         cancel,
	}, nil
}

// Initialize registers the given services, runs one immediate check pass over
// all of them in parallel, then starts one periodic timer per service. It
// returns once the initial pass has settled; probe failures surface as error
// results, never as a returned error.
func (m *Monitor) Initialize(ctx context.Context, services []models.ServiceDescriptor) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("monitor is stopped")
	}
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("monitor already initialized")
	}
	m.started = true
	for _, svc := range services {
		m.services[svc.ID] = svc
	}
	m.mu.Unlock()

	m.CheckAllServices(ctx, services)

	for _, svc := range services {
		m.wg.Add(1)
		go m.runService(svc)
	}
	m.log.Info().Int("services", len(services)).Msg("health monitor started")
	return nil
}

// CheckAllServices probes every given service concurrently, waits for all
// probes to settle and emits one summary event. A single probe failure never
// aborts the batch.
func (m *Monitor) CheckAllServices(ctx context.Context, services []models.ServiceDescriptor) {
	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc models.ServiceDescriptor) {
			defer wg.Done()
			m.checkAndRecord(ctx, svc)
		}(svc)
	}
	wg.Wait()

	summary := m.Summary()
	m.rec.SetSummary(summary)
	m.emit(models.Event{Kind: models.EventSummary, Summary: &summary, EmittedAt: time.Now().UTC()})
}

// ForceHealthCheck bypasses the timer and probes one service immediately,
// updating state and emitting the same change notification as the periodic
// path. It fails only for unregistered service ids.
func (m *Monitor) ForceHealthCheck(ctx context.Context, serviceID string) (models.HealthResult, error) {
	m.mu.RLock()
	svc, ok := m.services[serviceID]
	m.mu.RUnlock()
	if !ok {
		return models.HealthResult{}, fmt.Errorf("unknown service %q", serviceID)
	}
	return m.checkAndRecord(ctx, svc), nil
}

// Current returns the latest result for a service, if one exists.
func (m *Monitor) Current(serviceID string) (models.HealthResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.current[serviceID]
	return res, ok
}

// CurrentAll returns a snapshot of the latest result per service.
func (m *Monitor) CurrentAll() map[string]models.HealthResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.HealthResult, len(m.current))
	for id, res := range m.current {
		out[id] = res
	}
	return out
}

// Services returns the registered descriptors.
func (m *Monitor) Services() []models.ServiceDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.ServiceDescriptor, 0, len(m.services))
	for _, svc := range m.services {
		out = append(out, svc)
	}
	return out
}

// HistoryFor returns the bounded probe history of one service, oldest first.
func (m *Monitor) HistoryFor(serviceID string) []models.HealthResult {
	return m.hist.For(serviceID)
}

// Histories returns every service's recorded run.
func (m *Monitor) Histories() map[string][]models.HealthResult {
	return m.hist.All()
}

// Summary tallies the current results per status bucket.
func (m *Monitor) Summary() models.Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s models.Summary
	for _, res := range m.current {
		s.Add(res.Status)
	}
	return s
}

// Subscribe registers an event consumer. The returned cancel function
// unregisters it and closes the channel. Slow consumers lose events rather
// than stall probes.
func (m *Monitor) Subscribe() (<-chan models.Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan models.Event, subscriberBuffer)
	if m.stopped {
		close(ch)
		return ch, func() {}
	}

	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Stop cancels every per-service timer, waits for in-flight probes and clears
// all state. Reads afterwards report no data.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.current = make(map[string]models.HealthResult)
	m.services = make(map[string]models.ServiceDescriptor)
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
	m.hist.Clear()
}

func (m *Monitor) runService(svc models.ServiceDescriptor) {
	defer m.wg.Done()

	interval := m.probing.Interval()
	if svc.CheckIntervalMS > 0 {
		interval = time.Duration(svc.CheckIntervalMS) * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.checkAndRecord(m.ctx, svc)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Monitor) checkAndRecord(ctx context.Context, svc models.ServiceDescriptor) models.HealthResult {
	started := time.Now()
	result := m.CheckServiceHealth(ctx, svc)
	m.rec.ObserveProbe(result, time.Since(started))
	m.record(svc, result)
	return result
}

func (m *Monitor) record(svc models.ServiceDescriptor, result models.HealthResult) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	previous, had := m.current[svc.ID]
	m.current[svc.ID] = result
	m.hist.Append(result)
	m.mu.Unlock()

	if had && previous.Status == result.Status {
		return
	}

	change := models.StatusChange{
		Service:        svc,
		PreviousStatus: models.StatusUnknown,
		CurrentStatus:  result.Status,
		CurrentResult:  result,
	}
	if had {
		change.PreviousStatus = previous.Status
		change.PreviousResult = &previous
	}
	m.log.Debug().
		Str("service", svc.ID).
		Str("from", string(change.PreviousStatus)).
		Str("to", string(change.CurrentStatus)).
		Msg("status changed")
	m.emit(models.Event{Kind: models.EventStatusChange, Change: &change, EmittedAt: time.Now().UTC()})
}

func (m *Monitor) emit(event models.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
