package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/kick"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
	"github.com/sytexa-julia/docker-kicker/internal/tracker"
)

// Mock implementations for testing
type MockKicker struct {
	mock.Mock
}

func (m *MockKicker) Kick(ctx context.Context, entry *config.Entry, extraEnv []string) error {
	args := m.Called(ctx, entry, extraEnv)
	return args.Error(0)
}

const testKey = "kkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkkk"

// testConfig returns a config with one entry that allows the httptest
// default client address
func testConfig() *config.Config {
	return &config.Config{
		Configs: []*config.Entry{
			{
				RawName:          "my job",
				Name:             "my-job",
				Key:              testKey,
				Image:            "alpine:latest",
				AllowFrom:        []string{"192.0.2.1"},
				QueryParamsToEnv: []string{"FOO"},
				Limit:            1,
			},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, kicker Kicker) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewServer(cfg, kicker, logger, 0)
	require.NoError(t, err)
	return s
}

func TestStatusProbe(t *testing.T) {
	s := newTestServer(t, testConfig(), new(MockKicker))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, testConfig(), new(MockKicker))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestKickUnknownKey(t *testing.T) {
	kicker := new(MockKicker)
	s := newTestServer(t, testConfig(), kicker)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/unknown-key", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	kicker.AssertNotCalled(t, "Kick", mock.Anything, mock.Anything, mock.Anything)
}

func TestKickDisallowedAddress(t *testing.T) {
	kicker := new(MockKicker)
	cfg := testConfig()
	cfg.Configs[0].AllowFrom = []string{"10.9.9.9"}
	s := newTestServer(t, cfg, kicker)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/"+testKey, nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	kicker.AssertNotCalled(t, "Kick", mock.Anything, mock.Anything, mock.Anything)
}

func TestKickAccepted(t *testing.T) {
	kicker := new(MockKicker)
	s := newTestServer(t, testConfig(), kicker)

	kicker.On("Kick", mock.Anything, mock.Anything, []string{"FOO=bar"}).Return(nil)

	// BAZ is not in the allowlist and must not become an env entry
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/"+testKey+"?FOO=bar&BAZ=qux", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	kicker.AssertExpectations(t)
}

func TestKickLimitReached(t *testing.T) {
	kicker := new(MockKicker)
	s := newTestServer(t, testConfig(), kicker)

	kicker.On("Kick", mock.Anything, mock.Anything, mock.Anything).Return(kick.ErrLimitReached)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/"+testKey, nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestQueryEnv(t *testing.T) {
	t.Run("StrictAllowlist", func(t *testing.T) {
		query := url.Values{"FOO": {"bar"}, "BAZ": {"qux"}}
		env := queryEnv(query, []string{"FOO"})
		assert.Equal(t, []string{"FOO=bar"}, env)
	})

	t.Run("DecodedValues", func(t *testing.T) {
		query, err := url.ParseQuery("FOO=a%20b%26c")
		require.NoError(t, err)
		env := queryEnv(query, []string{"FOO"})
		assert.Equal(t, []string{"FOO=a b&c"}, env)
	})

	t.Run("AbsentParam", func(t *testing.T) {
		env := queryEnv(url.Values{}, []string{"FOO"})
		assert.Empty(t, env)
	})

	t.Run("NoAllowlist", func(t *testing.T) {
		env := queryEnv(url.Values{"FOO": {"bar"}}, nil)
		assert.Empty(t, env)
	})
}

// Mock runtime for the end-to-end test through the real kick manager
type MockRuntime struct {
	mock.Mock
}

func (m *MockRuntime) PullImage(ctx context.Context, ref string, auth *config.RegistryAuth) error {
	args := m.Called(ctx, ref, auth)
	return args.Error(0)
}

func (m *MockRuntime) Run(ctx context.Context, spec runtime.RunSpec) (runtime.Handle, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(runtime.Handle), args.Error(1)
}

func (m *MockRuntime) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockHandle struct {
	mock.Mock
}

func (m *MockHandle) Wait(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockHandle) Remove(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestKickEndToEnd(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rt := new(MockRuntime)
	handle := new(MockHandle)
	tr := tracker.NewTracker(logger)
	manager := kick.NewManager(rt, tr, logger)

	cfg := testConfig()
	s := newTestServer(t, cfg, manager)

	instancePattern := regexp.MustCompile(`^my-job_[0-9a-f-]{36}$`)

	rt.On("PullImage", mock.Anything, "alpine:latest", (*config.RegistryAuth)(nil)).Return(nil)
	rt.On("Run", mock.Anything, mock.MatchedBy(func(spec runtime.RunSpec) bool {
		return instancePattern.MatchString(spec.Name) && spec.Image == "alpine:latest"
	})).Return(handle, nil)
	handle.On("Wait", mock.Anything).Return(nil)
	handle.On("Remove", mock.Anything).Return(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/"+testKey, nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return tr.Active("my-job") == 0
	}, time.Second, 10*time.Millisecond)

	rt.AssertNumberOfCalls(t, "PullImage", 1)
	rt.AssertNumberOfCalls(t, "Run", 1)
}
