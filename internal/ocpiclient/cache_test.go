package ocpiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cpo/internal/models"
	"cpo/internal/ocpi"
	"cpo/internal/registry"
)

type countingResolver struct {
	inner Resolver
	calls int32
}

func (r *countingResolver) ResolveClient(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	atomic.AddInt32(&r.calls, 1)
	return r.inner.ResolveClient(ctx, id)
}

func newRegistry(t *testing.T, parties ...models.RemoteParty) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.NewMemoryStore(), zap.NewNop())
	for _, p := range parties {
		require.NoError(t, reg.Upsert(context.Background(), p))
	}
	return reg
}

func TestCacheConcurrentCreationYieldsOneClient(t *testing.T) {
	res := &countingResolver{inner: newRegistry(t, partyWith("https://emsp.example.com"))}
	cache := NewCache(res, Options{})

	const n = 64
	clients := make([]*Client, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			cl, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
			assert.True(t, ok)
			clients[i] = cl
		}(i)
	}
	close(start)
	wg.Wait()

	for _, cl := range clients {
		assert.Same(t, clients[0], cl)
	}
	assert.Equal(t, 1, cache.Len())
	assert.LessOrEqual(t, atomic.LoadInt32(&res.calls), int32(n))

	again, ok := cache.GetOrCreateClient(context.Background(), models.NewPartyIdentity("nl", "ems", models.RoleEMSP), true)
	require.True(t, ok)
	assert.Same(t, clients[0], again)
}

func TestCacheBypassReplacesEntry(t *testing.T) {
	cache := NewCache(newRegistry(t, partyWith("https://emsp.example.com")), Options{})

	first, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
	require.True(t, ok)
	fresh, ok := cache.GetOrCreateClient(context.Background(), emsp, false)
	require.True(t, ok)
	assert.NotSame(t, first, fresh)

	cached, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
	require.True(t, ok)
	assert.Same(t, fresh, cached)
}

func TestCacheRemove(t *testing.T) {
	cache := NewCache(newRegistry(t, partyWith("https://emsp.example.com")), Options{})
	first, _ := cache.GetOrCreateClient(context.Background(), emsp, true)
	cache.Remove(emsp)
	assert.Equal(t, 0, cache.Len())
	second, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
	require.True(t, ok)
	assert.NotSame(t, first, second)
}

func TestCacheAbsentWithoutUsableCredential(t *testing.T) {
	blocked := partyWith("https://emsp.example.com")
	blocked.Outgoing[0].Status = models.StatusBlocked
	cache := NewCache(newRegistry(t, blocked), Options{})

	cl, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
	assert.False(t, ok)
	assert.Nil(t, cl)

	cl, ok = cache.GetOrCreateClient(context.Background(), models.NewPartyIdentity("BE", "UNK", models.RoleEMSP), true)
	assert.False(t, ok)
	assert.Nil(t, cl)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheRefreshEndpointsPersists(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/versions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, []models.VersionInfo{{Version: "2.2", URL: srv.URL + "/2.2"}}))
	})
	mux.HandleFunc("/2.2", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(envelopeBody(t, ocpi.StatusSuccess, models.VersionEndpoints{
			Endpoints: []models.Endpoint{{Identifier: models.ModuleSessions, Role: models.InterfaceReceiver, URL: srv.URL + "/sessions"}},
		}))
	})

	reg := newRegistry(t, partyWith(srv.URL))
	cache := NewCache(reg, Options{})
	ve, err := cache.RefreshEndpoints(context.Background(), emsp, reg)
	require.NoError(t, err)
	assert.Equal(t, "2.2", ve.Version)

	cl, ok := cache.GetOrCreateClient(context.Background(), emsp, true)
	require.True(t, ok)
	u, ok := cl.ResolveEndpoint(models.ModuleSessions, "")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/sessions", u)
}

type ctxCheckingResolver struct{ inner Resolver }

func (r ctxCheckingResolver) ResolveClient(ctx context.Context, id models.PartyIdentity) (*models.RemoteParty, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.inner.ResolveClient(ctx, id)
}

func TestCacheCreationSurvivesCallerCancellation(t *testing.T) {
	reg := newRegistry(t, partyWith("https://emsp.example.com/ocpi"))
	cache := NewCache(ctxCheckingResolver{inner: reg}, Options{From: self})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cl, ok := cache.GetOrCreateClient(ctx, emsp, true)
	require.True(t, ok)
	assert.NotNil(t, cl)
}
