package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceDescriptor identifies a monitored service endpoint. Descriptors are
// registered once at startup and never mutated afterwards.
type ServiceDescriptor struct {
	ID              string       `yaml:"id" json:"id"`
	Name            string       `yaml:"name" json:"name"`
	URL             string       `yaml:"url" json:"url"`
	HealthCheck     *HealthCheck `yaml:"health_check,omitempty" json:"health_check,omitempty"`
	CheckIntervalMS int          `yaml:"check_interval_ms,omitempty" json:"check_interval_ms,omitempty"`
}

// ProbeURL returns the URL a probe should hit: the health check override if
// one was configured, otherwise the service URL itself.
func (s ServiceDescriptor) ProbeURL() string {
	if s.HealthCheck != nil {
		if s.HealthCheck.URL != "" {
			return s.HealthCheck.URL
		}
		if s.HealthCheck.Probe != nil && s.HealthCheck.Probe.URL != "" {
			return s.HealthCheck.Probe.URL
		}
	}
	return s.URL
}

// HealthCheck is either a plain URL or a structured probe configuration.
// In YAML it accepts a scalar string or a mapping.
type HealthCheck struct {
	URL   string
	Probe *ProbeConfig
}

// UnmarshalYAML accepts both forms of the health_check field.
func (h *HealthCheck) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&h.URL)
	case yaml.MappingNode:
		var probe ProbeConfig
		if err := value.Decode(&probe); err != nil {
			return err
		}
		h.Probe = &probe
		return nil
	default:
		return fmt.Errorf("health_check must be a URL string or a probe mapping")
	}
}

// MarshalJSON mirrors the YAML union: a bare string for URL-only checks,
// an object for structured probes.
func (h HealthCheck) MarshalJSON() ([]byte, error) {
	if h.Probe != nil {
		return json.Marshal(h.Probe)
	}
	return json.Marshal(h.URL)
}

// UnmarshalJSON accepts both union forms.
func (h *HealthCheck) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &h.URL)
	}
	var probe ProbeConfig
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	h.Probe = &probe
	return nil
}

// ProbeConfig describes an advanced structured health probe.
type ProbeConfig struct {
	URL            string            `yaml:"url,omitempty" json:"url,omitempty"`
	Method         string            `yaml:"method,omitempty" json:"method,omitempty"`
	TimeoutMS      int               `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	ExpectedStatus []int             `yaml:"expected_status,omitempty" json:"expected_status,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body           string            `yaml:"body,omitempty" json:"body,omitempty"`
	MaxRetries     int               `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryDelayMS   int               `yaml:"retry_delay_ms,omitempty" json:"retry_delay_ms,omitempty"`
}

// StatusExpected reports whether an HTTP status code satisfies the probe.
// An empty expected list means any 2xx code passes.
func (p ProbeConfig) StatusExpected(code int) bool {
	if len(p.ExpectedStatus) == 0 {
		return code >= 200 && code < 300
	}
	for _, want := range p.ExpectedStatus {
		if code == want {
			return true
		}
	}
	return false
}

// Status buckets a probe outcome.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// Method names the probing strategy that produced a result.
type Method string

const (
	MethodDirect    Method = "direct"
	MethodProxy     Method = "proxy"
	MethodImageTest Method = "image_test"
	MethodAdvanced  Method = "advanced"
)

// HealthResult captures the outcome of a single probe attempt.
// Results are created fresh on every probe and never mutated.
type HealthResult struct {
	ServiceID      string    `json:"service_id"`
	ServiceName    string    `json:"service_name"`
	Status         Status    `json:"status"`
	Message        string    `json:"message,omitempty"`
	ResponseTimeMS *float64  `json:"response_time_ms,omitempty"`
	Method         Method    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
}

// Summary tallies current results per status bucket.
type Summary struct {
	Healthy int `json:"healthy"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Unknown int `json:"unknown"`
	Total   int `json:"total"`
}

// Add counts one result into the summary.
func (s *Summary) Add(status Status) {
	switch status {
	case StatusHealthy:
		s.Healthy++
	case StatusWarning:
		s.Warning++
	case StatusError:
		s.Error++
	default:
		s.Unknown++
	}
	s.Total++
}
