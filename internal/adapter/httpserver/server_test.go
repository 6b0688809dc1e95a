package httpserver

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
	"github.com/pscheid92/forumcast/internal/app"
	"github.com/pscheid92/forumcast/internal/domain"
	"github.com/pscheid92/forumcast/internal/hub"
	"github.com/pscheid92/forumcast/internal/platform/config"
)

const (
	adminToken = "admin-token"
	aliceToken = "alice-token"
	bobToken   = "bob-token"

	aliceID int64 = 7
	bobID   int64 = 8

	// bob moderates this community
	moddedCommunity int64 = 3
)

type fakeIdentity struct {
	tokens map[string]*domain.Identity
}

func (f *fakeIdentity) Resolve(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, nil
	}
	identity, ok := f.tokens[token]
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	return identity, nil
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{tokens: map[string]*domain.Identity{
		adminToken: {UserID: 1, Name: "root", Admin: true},
		aliceToken: {UserID: aliceID, Name: "alice"},
		bobToken:   {UserID: bobID, Name: "bob"},
	}}
}

type fakeModerators struct{}

func (fakeModerators) IsModerator(_ context.Context, communityID, userID int64) (bool, error) {
	return communityID == moddedCommunity && userID == bobID, nil
}

type fakeTaglineRepo struct {
	mu     sync.Mutex
	nextID int32
	items  map[int32]string
}

func newFakeTaglineRepo(contents ...string) *fakeTaglineRepo {
	r := &fakeTaglineRepo{items: make(map[int32]string)}
	for _, content := range contents {
		_, _ = r.Create(context.Background(), content)
	}
	return r
}

func (r *fakeTaglineRepo) Create(_ context.Context, content string) (*domain.Tagline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.items[r.nextID] = content
	return &domain.Tagline{ID: r.nextID, Content: content}, nil
}

func (r *fakeTaglineRepo) Read(_ context.Context, id int32) (*domain.Tagline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	content, ok := r.items[id]
	if !ok {
		return nil, domain.ErrTaglineNotFound
	}
	return &domain.Tagline{ID: id, Content: content}, nil
}

func (r *fakeTaglineRepo) Update(_ context.Context, id int32, content string) (*domain.Tagline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return nil, domain.ErrTaglineNotFound
	}
	r.items[id] = content
	return &domain.Tagline{ID: id, Content: content}, nil
}

func (r *fakeTaglineRepo) Delete(_ context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrTaglineNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *fakeTaglineRepo) GetAll(_ context.Context) ([]domain.Tagline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.Tagline, 0, len(r.items))
	for id, content := range r.items {
		all = append(all, domain.Tagline{ID: id, Content: content})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (r *fakeTaglineRepo) GetRandom(ctx context.Context) (*domain.Tagline, error) {
	all, _ := r.GetAll(ctx)
	if len(all) == 0 {
		return nil, domain.ErrTaglineNotFound
	}
	return &all[0], nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		AppURL:                  "http://localhost:8080",
		Port:                    "8080",
		MaxWebSocketConnections: 100,
		MaxConnectionsPerIP:     10,
		ConnectionQueueSize:     16,
		WSMessagesPerSecond:     100,
		WSMessageBurst:          100,
		ExclusiveRooms:          true,
		APIRateLimit:            100,
		APIRateBurst:            100,
	}
}

type testEnv struct {
	server   *Server
	hub      *hub.Hub
	taglines *fakeTaglineRepo
}

type testOption func(*testOptions)

type testOptions struct {
	config       *config.Config
	taglines     *fakeTaglineRepo
	healthChecks []HealthCheck
	httpMetrics  *metrics.HTTPMetrics
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(o *testOptions) { o.healthChecks = checks }
}

func withConfig(mutate func(*config.Config)) testOption {
	return func(o *testOptions) { mutate(o.config) }
}

func withHTTPMetrics(m *metrics.HTTPMetrics) testOption {
	return func(o *testOptions) { o.httpMetrics = m }
}

func withTaglines(repo *fakeTaglineRepo) testOption {
	return func(o *testOptions) { o.taglines = repo }
}

// newTestEnv builds a server over a real hub and real room and tagline services.
func newTestEnv(t *testing.T, opts ...testOption) *testEnv {
	t.Helper()

	o := &testOptions{config: testConfig(), taglines: newFakeTaglineRepo()}
	for _, opt := range opts {
		opt(o)
	}

	clock := clockwork.NewRealClock()
	h := hub.New(clock, nil)
	t.Cleanup(h.Stop)

	srv := NewServer(o.config, Services{
		Rooms:    app.NewRooms(h, fakeModerators{}, o.config.ExclusiveRooms),
		Taglines: app.NewTaglines(o.taglines),
		Hub:      h,
		Identity: newFakeIdentity(),
	}, clock, nil, o.httpMetrics, o.healthChecks)

	return &testEnv{server: srv, hub: h, taglines: o.taglines}
}

func newTestServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()
	return newTestEnv(t, opts...).server
}
