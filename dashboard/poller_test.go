package dashboard

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkmaster-dashboard/api"
)

func newTestPoller(env *testEnv) *Poller {
	p := NewPoller(env.client, env.store, quietLogger(), 10*time.Millisecond, time.Second)
	p.now = fixedClock(time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC))
	return p
}

func TestPollerTickCommitsHealthAndVehicles(t *testing.T) {
	curr := sampleVehicle("ABC123", api.StatusGreen)
	env := newTestEnv(t, &fakeBackend{current: &curr})
	p := newTestPoller(env)

	p.tick(context.Background())

	st := env.store.Connection()
	assert.True(t, st.BackendHealthy)
	assert.Equal(t, time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC), st.HealthCheckedAt)

	pair, ok := env.store.Vehicles()
	require.True(t, ok)
	assert.Equal(t, api.PreviousFallback(), pair.Previous)
	assert.Equal(t, curr, pair.Current)
}

func TestPollerSkipsUnchangedVehicles(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newTestPoller(env)
	rec := &eventRecorder{}
	env.store.Subscribe(rec.record)

	p.tick(context.Background())
	p.tick(context.Background())
	assert.Equal(t, []string{eventConnection, eventVehicles}, rec.types())

	env.fb.setCurrent(sampleVehicle("NEW001", api.StatusRed))
	p.tick(context.Background())
	assert.Equal(t, []string{eventConnection, eventVehicles, eventVehicles}, rec.types())
}

func TestPollerRecordsUnhealthyBackend(t *testing.T) {
	env := newTestEnv(t, &fakeBackend{healthStatus: http.StatusServiceUnavailable})
	p := newTestPoller(env)

	p.tick(context.Background())
	assert.False(t, env.store.Connection().BackendHealthy)

	// vehicle lookups still degrade to fallbacks
	pair, ok := env.store.Vehicles()
	require.True(t, ok)
	assert.Equal(t, api.CurrentFallback(), pair.Current)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, nil)
	p := newTestPoller(env)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, ok := env.store.Vehicles()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPollerGivesEachLookupItsOwnDeadline(t *testing.T) {
	prev := sampleVehicle("PRV001", api.StatusGreen)
	curr := sampleVehicle("CUR001", api.StatusRed)
	env := newTestEnvWithTimeout(t, &fakeBackend{
		previous:     &prev,
		current:      &curr,
		healthDelay:  300 * time.Millisecond,
		vehicleDelay: 300 * time.Millisecond,
	}, time.Second)

	// together the calls take longer than one request timeout
	p := NewPoller(env.client, env.store, quietLogger(), 10*time.Millisecond, 450*time.Millisecond)
	p.now = fixedClock(time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC))
	p.tick(context.Background())

	assert.True(t, env.store.Connection().BackendHealthy)
	pair, ok := env.store.Vehicles()
	require.True(t, ok)
	assert.Equal(t, prev, pair.Previous)
	assert.Equal(t, curr, pair.Current)
}

func TestLoadVehiclesIsolatesHungLookup(t *testing.T) {
	curr := sampleVehicle("XYZ789", api.StatusRed)
	env := newTestEnv(t, &fakeBackend{previousHang: true, current: &curr})

	start := time.Now()
	pair := loadVehicles(context.Background(), env.client)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, api.PreviousFallback(), pair.Previous)
	assert.Equal(t, curr, pair.Current)
}

func TestLoadVehiclesRunsConcurrently(t *testing.T) {
	prev := sampleVehicle("PRV001", api.StatusGreen)
	curr := sampleVehicle("CUR001", api.StatusRed)
	// each lookup is only answered once the other is in flight as well
	env := newTestEnv(t, &fakeBackend{
		previous: &prev,
		current:  &curr,
		meetBoth: true,
		meetWait: 150 * time.Millisecond,
	})

	pair := loadVehicles(context.Background(), env.client)
	assert.Equal(t, prev, pair.Previous)
	assert.Equal(t, curr, pair.Current)
}
