package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/concierge/internal/cache"
	"github.com/MrSnakeDoc/concierge/internal/downstream"
	"github.com/MrSnakeDoc/concierge/internal/logger"
	"github.com/MrSnakeDoc/concierge/internal/sources/registry"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeFetcher answers every call with a small JSON document unless the service
// or the exact path is marked down.
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	down      map[string]bool
	downPaths map[string]bool
	block     chan struct{}
	panicOn   string
}

func (f *fakeFetcher) Fetch(_ context.Context, service, path string) downstream.Result {
	f.mu.Lock()
	f.calls = append(f.calls, service+path)
	down := f.down[service] || f.downPaths[path]
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if service == f.panicOn {
		panic("boom")
	}
	if down {
		return downstream.Result{Status: downstream.StatusDown, Err: errors.New("connection refused")}
	}
	return downstream.Result{
		Status: downstream.StatusHealthy,
		Data:   json.RawMessage(fmt.Sprintf(`{"service":%q}`, service)),
	}
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type brokenCache struct{ err error }

func (b brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, b.err }
func (b brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return b.err
}
func (b brokenCache) Flush(context.Context) error { return b.err }

func newTestAggregator(f Fetcher) (*Aggregator, *cache.Memory, *fakeClock) {
	clock := newFakeClock()
	mem := cache.NewMemoryWithClock(clock.Now)
	return NewAggregator(mem, f, logger.Nop(), WithClock(clock.Now)), mem, clock
}

func callerFor(role Role) Caller {
	return Caller{UserID: "staff-7", Role: role}
}

func TestDashboardHealthCoversExactlyRoleServices(t *testing.T) {
	for role, def := range Roles {
		t.Run(string(role), func(t *testing.T) {
			f := &fakeFetcher{}
			agg, _, _ := newTestAggregator(f)

			res, err := agg.Dashboard(context.Background(), role, callerFor(role))
			if err != nil {
				t.Fatalf("Dashboard() error = %v", err)
			}

			p := res.Payload
			if len(p.Health) != len(def.Services()) {
				t.Errorf("Health has %d entries, want %d: %v", len(p.Health), len(def.Services()), p.Health)
			}
			for _, svc := range def.Services() {
				if p.Health[svc] != downstream.StatusHealthy {
					t.Errorf("Health[%s] = %q, want healthy", svc, p.Health[svc])
				}
			}
			if len(p.Fields) != len(def.Sources) {
				t.Errorf("Fields has %d entries, want %d", len(p.Fields), len(def.Sources))
			}
			for _, src := range def.Sources {
				if p.Fields[src.Field] == nil {
					t.Errorf("field %s is null", src.Field)
				}
			}
			if res.Cached {
				t.Error("first call should not be cached")
			}
			if f.count() != len(def.Sources) {
				t.Errorf("fetches = %d, want %d", f.count(), len(def.Sources))
			}
		})
	}
}

func TestDashboardPartialFailure(t *testing.T) {
	f := &fakeFetcher{down: map[string]bool{"guests": true}}
	agg, _, _ := newTestAggregator(f)

	res, err := agg.Dashboard(context.Background(), RoleReceptionist, callerFor(RoleReceptionist))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	p := res.Payload
	if p.Fields["guestDirectory"] != nil {
		t.Errorf("guestDirectory = %s, want null", p.Fields["guestDirectory"])
	}
	if _, ok := p.Fields["guestDirectory"]; !ok {
		t.Error("guestDirectory key must be present even when null")
	}
	if p.Health["guests"] != downstream.StatusDown {
		t.Errorf("Health[guests] = %q, want down", p.Health["guests"])
	}

	for _, field := range []string{"todaysReservations", "roomAvailability", "messages", "pendingPayments"} {
		if p.Fields[field] == nil {
			t.Errorf("field %s should be populated", field)
		}
	}
	for _, svc := range []string{"reservations", "rooms", "communication", "payments"} {
		if p.Health[svc] != downstream.StatusHealthy {
			t.Errorf("Health[%s] = %q, want healthy", svc, p.Health[svc])
		}
	}
}

func TestDashboardAllDown(t *testing.T) {
	down := map[string]bool{}
	for _, svc := range Roles[RoleAdmin].Services() {
		down[svc] = true
	}
	agg, _, _ := newTestAggregator(&fakeFetcher{down: down})

	res, err := agg.Dashboard(context.Background(), RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("every service down is still not an aggregation failure, got %v", err)
	}
	for svc, status := range res.Payload.Health {
		if status != downstream.StatusDown {
			t.Errorf("Health[%s] = %q, want down", svc, status)
		}
	}
	for field, data := range res.Payload.Fields {
		if data != nil {
			t.Errorf("field %s = %s, want null", field, data)
		}
	}
}

func TestDashboardCacheTTL(t *testing.T) {
	f := &fakeFetcher{}
	agg, _, clock := newTestAggregator(f)
	ctx := context.Background()

	first, err := agg.Dashboard(ctx, RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if first.Cached {
		t.Fatal("first call should be a miss")
	}

	clock.Advance(119 * time.Second)
	second, err := agg.Dashboard(ctx, RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if !second.Cached {
		t.Error("call within TTL should be cached")
	}
	if second.Payload.LastUpdated != first.Payload.LastUpdated {
		t.Errorf("cached lastUpdated = %q, want %q", second.Payload.LastUpdated, first.Payload.LastUpdated)
	}
	if f.count() != 7 {
		t.Errorf("fetches = %d, want 7", f.count())
	}

	clock.Advance(2 * time.Second)
	third, err := agg.Dashboard(ctx, RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if third.Cached {
		t.Error("call after TTL should not be cached")
	}
	if third.Payload.LastUpdated == first.Payload.LastUpdated {
		t.Error("rebuilt dashboard should carry a new lastUpdated")
	}
	if f.count() != 14 {
		t.Errorf("fetches = %d, want 14", f.count())
	}
}

func TestDashboardRolesCachedSeparately(t *testing.T) {
	f := &fakeFetcher{}
	agg, mem, _ := newTestAggregator(f)
	ctx := context.Background()

	if _, err := agg.Dashboard(ctx, RoleAdmin, callerFor(RoleAdmin)); err != nil {
		t.Fatal(err)
	}
	res, err := agg.Dashboard(ctx, RoleReceptionist, callerFor(RoleReceptionist))
	if err != nil {
		t.Fatal(err)
	}
	if res.Cached {
		t.Error("receptionist must not be served the admin entry")
	}
	if mem.Len() != 2 {
		t.Errorf("cache entries = %d, want 2", mem.Len())
	}
}

func TestDashboardCachedNullsStayNull(t *testing.T) {
	agg, _, _ := newTestAggregator(&fakeFetcher{down: map[string]bool{"guests": true}})
	ctx := context.Background()

	if _, err := agg.Dashboard(ctx, RoleReceptionist, callerFor(RoleReceptionist)); err != nil {
		t.Fatal(err)
	}
	res, err := agg.Dashboard(ctx, RoleReceptionist, callerFor(RoleReceptionist))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Fatal("second call should be cached")
	}
	if res.Payload.Fields["guestDirectory"] != nil {
		t.Errorf("guestDirectory = %s, want nil", res.Payload.Fields["guestDirectory"])
	}
	if res.Payload.Health["guests"] != downstream.StatusDown {
		t.Errorf("Health[guests] = %q", res.Payload.Health["guests"])
	}
	if res.Payload.HealthKey != "serviceHealth" || res.Payload.Role != RoleReceptionist {
		t.Errorf("cached payload lost its role data: %+v", res.Payload)
	}
}

func TestHousekeeperNeverCached(t *testing.T) {
	f := &fakeFetcher{}
	agg, mem, _ := newTestAggregator(f)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := agg.Dashboard(ctx, RoleHousekeeper, callerFor(RoleHousekeeper))
		if err != nil {
			t.Fatalf("Dashboard() error = %v", err)
		}
		if res.Cached {
			t.Errorf("call %d served from cache", i+1)
		}
	}

	if f.count() != 6 {
		t.Errorf("fetches = %d, want two full fan-outs (6)", f.count())
	}
	if mem.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", mem.Len())
	}
}

func TestHousekeeperRequiresCaller(t *testing.T) {
	tests := []Caller{
		{},
		{Role: RoleHousekeeper},
		{UserID: "   ", Role: RoleHousekeeper},
	}
	for _, caller := range tests {
		f := &fakeFetcher{}
		agg, _, _ := newTestAggregator(f)

		_, err := agg.Dashboard(context.Background(), RoleHousekeeper, caller)
		if !errors.Is(err, ErrAuthenticationMissing) {
			t.Errorf("Dashboard(%+v) error = %v, want ErrAuthenticationMissing", caller, err)
		}
		if f.count() != 0 {
			t.Errorf("fetches = %d, want 0", f.count())
		}
	}
}

func TestHousekeeperPaths(t *testing.T) {
	f := &fakeFetcher{}
	agg, _, _ := newTestAggregator(f)

	_, err := agg.Dashboard(context.Background(), RoleHousekeeper, Caller{UserID: "hk 9/b", Role: RoleHousekeeper})
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	want := []string{
		"housekeeping/staff/hk%209%2Fb/stats",
		"housekeeping/tasks/assigned/hk%209%2Fb",
		"reservations/reservations/room-status",
	}
	got := f.Calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHousekeeperSharedServiceHealth(t *testing.T) {
	f := &fakeFetcher{downPaths: map[string]bool{"/staff/staff-7/stats": true}}
	agg, _, _ := newTestAggregator(f)

	res, err := agg.Dashboard(context.Background(), RoleHousekeeper, callerFor(RoleHousekeeper))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	p := res.Payload
	if p.Fields["assignedTasks"] == nil {
		t.Error("assignedTasks should be populated")
	}
	if p.Fields["personalStats"] != nil {
		t.Error("personalStats should be null")
	}
	if p.Health["housekeeping"] != downstream.StatusDown {
		t.Errorf("Health[housekeeping] = %q, want down when one of its calls failed", p.Health["housekeeping"])
	}
	if p.Health["reservations"] != downstream.StatusHealthy {
		t.Errorf("Health[reservations] = %q", p.Health["reservations"])
	}
	if len(p.Health) != 2 {
		t.Errorf("Health = %v, want 2 entries", p.Health)
	}
}

func TestClearCache(t *testing.T) {
	f := &fakeFetcher{}
	agg, mem, _ := newTestAggregator(f)
	ctx := context.Background()

	for _, role := range []Role{RoleAdmin, RoleReceptionist} {
		if _, err := agg.Dashboard(ctx, role, callerFor(role)); err != nil {
			t.Fatal(err)
		}
	}

	if err := agg.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}
	if err := agg.ClearCache(ctx); err != nil {
		t.Fatalf("second ClearCache() error = %v", err)
	}
	if mem.Len() != 0 {
		t.Errorf("cache entries = %d after clear", mem.Len())
	}

	for _, role := range []Role{RoleAdmin, RoleReceptionist} {
		res, err := agg.Dashboard(ctx, role, callerFor(role))
		if err != nil {
			t.Fatal(err)
		}
		if res.Cached {
			t.Errorf("%s served from cache after clear", role)
		}
	}
}

func TestClearCacheFailure(t *testing.T) {
	agg := NewAggregator(brokenCache{err: errors.New("redis down")}, &fakeFetcher{}, logger.Nop())

	err := agg.ClearCache(context.Background())
	if !errors.Is(err, ErrCacheClearFailure) {
		t.Errorf("ClearCache() error = %v, want ErrCacheClearFailure", err)
	}
}

func TestDashboardCacheErrorsDegradeToMiss(t *testing.T) {
	f := &fakeFetcher{}
	agg := NewAggregator(brokenCache{err: errors.New("redis down")}, f, logger.Nop())

	for i := 0; i < 2; i++ {
		res, err := agg.Dashboard(context.Background(), RoleAdmin, callerFor(RoleAdmin))
		if err != nil {
			t.Fatalf("Dashboard() error = %v, cache errors must not fail the dashboard", err)
		}
		if res.Cached {
			t.Error("nothing can be cached on a broken backend")
		}
	}
	if f.count() != 14 {
		t.Errorf("fetches = %d, want 14", f.count())
	}
}

func TestDashboardCorruptEntryIsMiss(t *testing.T) {
	f := &fakeFetcher{}
	agg, mem, _ := newTestAggregator(f)
	ctx := context.Background()

	if err := mem.Set(ctx, "dashboard:admin", []byte("not json"), time.Minute); err != nil {
		t.Fatal(err)
	}

	res, err := agg.Dashboard(ctx, RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if res.Cached || f.count() != 7 {
		t.Errorf("corrupt entry should be rebuilt (cached=%v, fetches=%d)", res.Cached, f.count())
	}
}

func TestDashboardUnknownRole(t *testing.T) {
	agg, _, _ := newTestAggregator(&fakeFetcher{})

	_, err := agg.Dashboard(context.Background(), Role("guest"), Caller{UserID: "x"})
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("Dashboard() error = %v, want ErrUnknownRole", err)
	}
}

func TestDashboardFetcherPanicIsDown(t *testing.T) {
	agg, _, _ := newTestAggregator(&fakeFetcher{panicOn: "billing"})

	res, err := agg.Dashboard(context.Background(), RoleAdmin, callerFor(RoleAdmin))
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if res.Payload.Health["billing"] != downstream.StatusDown || res.Payload.Fields["billing"] != nil {
		t.Errorf("panicking fetch should be down/null, got %q %s", res.Payload.Health["billing"], res.Payload.Fields["billing"])
	}
	if res.Payload.Health["payments"] != downstream.StatusHealthy {
		t.Error("other services must not be affected")
	}
}

func TestDashboardAggregationPanicIsFailure(t *testing.T) {
	agg, _, _ := newTestAggregator(&fakeFetcher{})
	agg.now = func() time.Time { panic("clock exploded") }

	_, err := agg.Dashboard(context.Background(), RoleAdmin, callerFor(RoleAdmin))
	if !errors.Is(err, ErrAggregationFailure) {
		t.Errorf("Dashboard() error = %v, want ErrAggregationFailure", err)
	}
}

func TestDashboardConcurrentMissesCoalesce(t *testing.T) {
	f := &fakeFetcher{block: make(chan struct{})}
	agg, _, _ := newTestAggregator(f)
	time.AfterFunc(50*time.Millisecond, func() { close(f.block) })

	const callers = 10
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = agg.Dashboard(context.Background(), RoleAdmin, callerFor(RoleAdmin))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d error = %v", i, err)
		}
	}
	if f.count() != 7 {
		t.Errorf("fetches = %d, want a single fan-out (7)", f.count())
	}
	for i := 1; i < callers; i++ {
		if results[i].Payload.LastUpdated != results[0].Payload.LastUpdated {
			t.Errorf("caller %d saw a different build", i)
		}
	}
}

func TestDashboardDownstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer fast.Close()

	services := registry.Services{}
	for _, name := range Roles[RoleReceptionist].Services() {
		services[name] = registry.Service{Name: name, BaseURL: fast.URL, HealthPath: "/health"}
	}
	services["guests"] = registry.Service{Name: "guests", BaseURL: slow.URL, HealthPath: "/health"}

	const timeout = 200 * time.Millisecond
	client := downstream.NewClient(services, downstream.Options{Timeout: timeout})
	agg := NewAggregator(cache.NewMemory(), client, logger.Nop())

	start := time.Now()
	res, err := agg.Dashboard(context.Background(), RoleReceptionist, callerFor(RoleReceptionist))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}

	if elapsed > timeout+time.Second {
		t.Errorf("Dashboard() took %v, bounded by the per-call timeout", elapsed)
	}
	if res.Payload.Fields["guestDirectory"] != nil {
		t.Error("guestDirectory should be null")
	}
	if res.Payload.Health["guests"] != downstream.StatusDown {
		t.Errorf("Health[guests] = %q", res.Payload.Health["guests"])
	}
	if res.Payload.Health["communication"] != downstream.StatusHealthy {
		t.Errorf("Health[communication] = %q, must be unaffected", res.Payload.Health["communication"])
	}
	if string(res.Payload.Fields["messages"]) != `{"ok":true}` {
		t.Errorf("messages = %s", res.Payload.Fields["messages"])
	}
}
