package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quricedev/alice-ai/internal/handler"
	"github.com/quricedev/alice-ai/internal/models"
	"github.com/quricedev/alice-ai/internal/repository"
	"github.com/quricedev/alice-ai/internal/service"
	"github.com/quricedev/alice-ai/internal/upstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	keys []*models.Key
}

func (m *memStore) Create(_ context.Context, key *models.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == key.Key {
			return repository.ErrDuplicateKey
		}
	}
	cp := *key
	m.keys = append(m.keys, &cp)
	return nil
}

func (m *memStore) FindByKey(_ context.Context, token string) (*models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == token {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByName(_ context.Context, name string) (*models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Name == name {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindActiveByKey(_ context.Context, token string) (*models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == token && k.Active {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindAllByName(_ context.Context, name string) ([]models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Key
	for _, k := range m.keys {
		if k.Name == name {
			out = append(out, *k)
		}
	}
	return out, nil
}

func (m *memStore) SetActive(_ context.Context, token string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == token {
			k.Active = active
		}
	}
	return nil
}

func (m *memStore) IncrementUsage(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range m.keys {
		if k.Key == token {
			k.Usage++
		}
	}
	return nil
}

func (m *memStore) RevokeByName(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, k := range m.keys {
		if k.Name == name {
			k.Active = false
			count++
		}
	}
	return count, nil
}

func (m *memStore) DeleteByKeyOrName(_ context.Context, token string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []*models.Key
	var count int64
	for _, k := range m.keys {
		if k.Key == token || k.Name == token {
			count++
			continue
		}
		kept = append(kept, k)
	}
	m.keys = kept
	return count, nil
}

func (m *memStore) List(_ context.Context) ([]models.Key, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Key, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, *k)
	}
	return out, nil
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string) (string, float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return "", 0, f.err
	}
	return f.reply, 0.42, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRouter(store service.KeyStore, completer handler.Completer) (*gin.Engine, *service.KeyService) {
	gin.SetMode(gin.TestMode)

	keys := service.NewKeyService(store, nil)
	guard := service.NewGuard(keys)
	h := handler.NewAIHandler(guard, keys, completer)

	router := gin.New()
	router.GET("/ai", h.Proxy)

	return router, keys
}

func proxyRequest(router *gin.Engine, apiKey, prompt string) *httptest.ResponseRecorder {
	query := url.Values{}
	if apiKey != "" {
		query.Set("apikey", apiKey)
	}
	if prompt != "" {
		query.Set("prompt", prompt)
	}

	req := httptest.NewRequest(http.MethodGet, "/ai?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProxyMissingParameters(t *testing.T) {
	completer := &fakeCompleter{reply: "hi"}
	router, _ := newTestRouter(&memStore{}, completer)

	for _, tc := range []struct{ apiKey, prompt string }{
		{"", ""},
		{"alice_key", ""},
		{"", "Hello"},
	} {
		w := proxyRequest(router, tc.apiKey, tc.prompt)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Missing parameters"}`, w.Body.String())
	}

	assert.Equal(t, 0, completer.callCount(), "upstream must not be contacted")
}

func TestProxyInvalidKey(t *testing.T) {
	completer := &fakeCompleter{reply: "hi"}
	router, _ := newTestRouter(&memStore{}, completer)

	w := proxyRequest(router, "alice_bogus", "Hello")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid API key"}`, w.Body.String())
	assert.Equal(t, 0, completer.callCount())
}

func TestProxyExpiredKey(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{reply: "hi"}
	router, _ := newTestRouter(store, completer)

	now := time.Now().UTC()
	expired := &models.Key{
		Key:       "alice_expired",
		Name:      "alice",
		Active:    true,
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-1 * time.Hour),
	}
	require.NoError(t, store.Create(context.Background(), expired))

	w := proxyRequest(router, expired.Key, "Hello")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"API key expired"}`, w.Body.String())
	assert.Equal(t, 0, completer.callCount())

	record, err := store.FindByKey(context.Background(), expired.Key)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.Active)
}

func TestProxySuccess(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{reply: "Hello! How can I help?"}
	router, keys := newTestRouter(store, completer)

	created, err := keys.Create(context.Background(), "alice", 30)
	require.NoError(t, err)

	w := proxyRequest(router, created.Key, "Hello")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Provider string  `json:"provider"`
		Reply    string  `json:"reply"`
		Latency  float64 `json:"latency"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	assert.Equal(t, "Alice AI", body.Provider)
	assert.Equal(t, "Hello! How can I help?", body.Reply)
	assert.Equal(t, 0.42, body.Latency)

	record, err := store.FindByKey(context.Background(), created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Usage)
}

func TestProxyUpstreamFailureNotMetered(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{err: upstream.ErrUpstream}
	router, keys := newTestRouter(store, completer)

	created, err := keys.Create(context.Background(), "alice", 30)
	require.NoError(t, err)

	w := proxyRequest(router, created.Key, "Hello")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Upstream error"}`, w.Body.String())

	record, err := store.FindByKey(context.Background(), created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Usage, "failed calls must not be metered")
}

func TestProxyUpstreamTimeout(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{err: upstream.ErrUpstreamTimeout}
	router, keys := newTestRouter(store, completer)

	created, err := keys.Create(context.Background(), "alice", 30)
	require.NoError(t, err)

	w := proxyRequest(router, created.Key, "Hello")
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	record, err := store.FindByKey(context.Background(), created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Usage)
}

func TestProxyConcurrentCallsMeterExactly(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{reply: "hi"}
	router, keys := newTestRouter(store, completer)

	created, err := keys.Create(context.Background(), "alice", 30)
	require.NoError(t, err)

	const calls = 25
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := proxyRequest(router, created.Key, "Hello")
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()

	record, err := store.FindByKey(context.Background(), created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(calls), record.Usage, "no increments may be lost")
}

func TestProxyLifecycleScenario(t *testing.T) {
	store := &memStore{}
	completer := &fakeCompleter{reply: "Hi alice"}
	router, keys := newTestRouter(store, completer)
	ctx := context.Background()

	created, err := keys.Create(ctx, "alice", 30)
	require.NoError(t, err)

	w := proxyRequest(router, created.Key, "Hello")
	require.Equal(t, http.StatusOK, w.Code)

	record, err := store.FindByKey(ctx, created.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.Usage)

	count, err := keys.DeleteByKeyOrName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	w = proxyRequest(router, created.Key, "Hello")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Invalid API key"}`, w.Body.String())
}
