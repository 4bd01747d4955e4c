package history

import (
	"math"
	"sort"
	"time"

	"labmonitor/internal/models"
)

// ServiceUptime summarises recorded health of a monitored service.
type ServiceUptime struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	UptimePercent float64 `json:"uptime_percent"`
	TotalChecks   int     `json:"total_checks"`
	Healthy       int     `json:"healthy"`
	Warning       int     `json:"warning"`
	Failing       int     `json:"failing"`
	LastStatus    string  `json:"last_status,omitempty"`
	LastChecked   string  `json:"last_checked,omitempty"`
}

// ComputeServiceUptime aggregates uptime statistics per service from recorded
// runs. A service counts as up for a check when the result was healthy or
// warning; warnings are ambiguous signals, not proven downtime.
func ComputeServiceUptime(runs map[string][]models.HealthResult) []ServiceUptime {
	if len(runs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(runs))
	for id := range runs {
		keys = append(keys, id)
	}
	sort.Strings(keys)

	results := make([]ServiceUptime, 0, len(keys))
	for _, id := range keys {
		run := runs[id]
		if len(run) == 0 {
			continue
		}

		summary := ServiceUptime{ID: id, Name: run[len(run)-1].ServiceName}
		var lastTime time.Time
		for _, res := range run {
			switch res.Status {
			case models.StatusHealthy:
				summary.Healthy++
			case models.StatusWarning:
				summary.Warning++
			default:
				summary.Failing++
			}
			if res.Timestamp.After(lastTime) {
				lastTime = res.Timestamp
				summary.LastStatus = string(res.Status)
			}
		}

		summary.TotalChecks = len(run)
		up := summary.Healthy + summary.Warning
		summary.UptimePercent = round2(float64(up) / float64(summary.TotalChecks) * 100)
		if !lastTime.IsZero() {
			summary.LastChecked = lastTime.UTC().Format(time.RFC3339)
		}
		results = append(results, summary)
	}
	return results
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
