package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmonitor/internal/models"
)

func result(serviceID string, status models.Status, ts time.Time) models.HealthResult {
	return models.HealthResult{
		ServiceID:   serviceID,
		ServiceName: serviceID,
		Status:      status,
		Method:      models.MethodDirect,
		Timestamp:   ts,
	}
}

func TestStoreEvictsOldestFirst(t *testing.T) {
	store := NewStore(3)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		res := result("svc", models.StatusHealthy, base.Add(time.Duration(i)*time.Minute))
		res.Message = fmt.Sprintf("probe %d", i)
		store.Append(res)
	}

	run := store.For("svc")
	require.Len(t, run, 3)
	assert.Equal(t, "probe 2", run[0].Message, "oldest entries are evicted first")
	assert.Equal(t, "probe 4", run[2].Message)
}

func TestStoreNeverExceedsCap(t *testing.T) {
	store := NewStore(10)
	base := time.Now().UTC()
	for i := 0; i < 100; i++ {
		store.Append(result("svc", models.StatusHealthy, base.Add(time.Duration(i)*time.Second)))
		assert.LessOrEqual(t, len(store.For("svc")), 10)
	}
}

func TestStoreKeepsServicesSeparate(t *testing.T) {
	store := NewStore(5)
	now := time.Now().UTC()
	store.Append(result("a", models.StatusHealthy, now))
	store.Append(result("b", models.StatusError, now))

	assert.Len(t, store.For("a"), 1)
	assert.Len(t, store.For("b"), 1)
	assert.Nil(t, store.For("c"))

	all := store.All()
	require.Len(t, all, 2)
	assert.Equal(t, models.StatusError, all["b"][0].Status)
}

func TestStoreForReturnsCopy(t *testing.T) {
	store := NewStore(5)
	store.Append(result("a", models.StatusHealthy, time.Now().UTC()))

	run := store.For("a")
	run[0].Status = models.StatusError

	assert.Equal(t, models.StatusHealthy, store.For("a")[0].Status)
}

func TestStoreSince(t *testing.T) {
	store := NewStore(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		store.Append(result("svc", models.StatusHealthy, base.Add(time.Duration(i)*time.Minute)))
	}

	assert.Len(t, store.Since("svc", base.Add(3*time.Minute)), 3)
	assert.Len(t, store.Since("svc", time.Time{}), 6)
	assert.Nil(t, store.Since("svc", base.Add(time.Hour)))
}

func TestStoreClear(t *testing.T) {
	store := NewStore(5)
	store.Append(result("a", models.StatusHealthy, time.Now().UTC()))
	store.Clear()
	assert.Nil(t, store.For("a"))
	assert.Empty(t, store.All())
}

func TestComputeServiceUptime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := map[string][]models.HealthResult{
		"a": {
			result("a", models.StatusHealthy, base),
			result("a", models.StatusWarning, base.Add(time.Minute)),
			result("a", models.StatusError, base.Add(2*time.Minute)),
			result("a", models.StatusHealthy, base.Add(3*time.Minute)),
		},
		"b": {
			result("b", models.StatusError, base),
		},
	}

	summaries := ComputeServiceUptime(runs)
	require.Len(t, summaries, 2)

	a := summaries[0]
	assert.Equal(t, "a", a.ID)
	assert.Equal(t, 4, a.TotalChecks)
	assert.Equal(t, 2, a.Healthy)
	assert.Equal(t, 1, a.Warning)
	assert.Equal(t, 1, a.Failing)
	assert.InDelta(t, 75.0, a.UptimePercent, 0.01, "healthy and warning both count as up")
	assert.Equal(t, "healthy", a.LastStatus)

	b := summaries[1]
	assert.Equal(t, 0.0, b.UptimePercent)
	assert.Equal(t, "error", b.LastStatus)
}

func TestComputeServiceUptimeEmpty(t *testing.T) {
	assert.Nil(t, ComputeServiceUptime(nil))
	assert.Nil(t, ComputeServiceUptime(map[string][]models.HealthResult{"a": nil}))
}
