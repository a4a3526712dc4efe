package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jtaw5649/barforge-registry/internal/auth"
	"github.com/jtaw5649/barforge-registry/internal/auth/provider"
	pkgcrypto "github.com/jtaw5649/barforge-registry/internal/crypto"
	"github.com/jtaw5649/barforge-registry/internal/limiter"
	"github.com/jtaw5649/barforge-registry/internal/repository/memory"
	"github.com/jtaw5649/barforge-registry/internal/service"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeIdP struct {
	gotChallenge string
	gotVerifier  string
	fail         bool
}

func (f *fakeIdP) Name() string { return "fake" }

func (f *fakeIdP) AuthCodeURL(state, challenge string) string {
	f.gotChallenge = challenge
	return "https://idp.example/authorize?" + url.Values{"state": {state}, "code_challenge": {challenge}}.Encode()
}

func (f *fakeIdP) ExchangeCode(_ context.Context, _ string, verifier string) (*auth.Identity, error) {
	f.gotVerifier = verifier
	if f.fail {
		return nil, errors.New("bad code")
	}
	return &auth.Identity{Provider: "fake", Subject: "42", Login: "octocat"}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type env struct {
	h   *Handler
	r   *gin.Engine
	idp *fakeIdP
	ids *service.IdentityServiceImpl
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	st := memory.New()
	hasher, err := pkgcrypto.NewHasher([]byte("session-key"))
	require.NoError(t, err)
	log := zaptest.NewLogger(t)
	ids := service.NewIdentityService(st.Users(), st.Sessions(), hasher, time.Hour, nil, log)
	idp := &fakeIdP{}
	if opts.StateKey == nil {
		opts.StateKey = []byte("state-key")
	}
	h := NewHandler(provider.NewRegistry(idp), ids, opts, log)
	require.NoError(t, h.Validate())
	return &env{h: h, r: h.Router(), idp: idp, ids: ids}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.r.ServeHTTP(rec, req)
	return rec
}

// startLogin returns the state parameter and the flow cookies.
func (e *env) startLogin(t *testing.T) (string, []*http.Cookie) {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodGet, "/oauth/login/fake", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "idp.example", loc.Host)
	require.NotEmpty(t, loc.Query().Get("code_challenge"))
	return loc.Query().Get("state"), rec.Result().Cookies()
}

func callbackReq(state, code string, cookies []*http.Cookie) *http.Request {
	q := url.Values{"state": {state}, "code": {code}}
	req := httptest.NewRequest(http.MethodGet, "/oauth/callback/fake?"+q.Encode(), nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestLoginFlow(t *testing.T) {
	e := newEnv(t, Options{})
	state, cookies := e.startLogin(t)
	challenge := e.idp.gotChallenge

	rec := e.do(callbackReq(state, "abc", cookies))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got sessionJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.Token)
	require.Equal(t, "octocat", got.User.Username)
	require.Equal(t, "user", got.User.Role)

	var verifier string
	for _, c := range cookies {
		if c.Name == pkceCookie {
			verifier = c.Value
		}
	}
	require.Equal(t, verifier, e.idp.gotVerifier)
	sum := sha256.Sum256([]byte(verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), challenge)

	u, ok := e.ids.ValidateSession(context.Background(), got.Token)
	require.True(t, ok)
	require.Equal(t, got.User.ID, u.ID.String())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+got.Token)
	require.Equal(t, http.StatusNoContent, e.do(req).Code)
	_, ok = e.ids.ValidateSession(context.Background(), got.Token)
	require.False(t, ok)
}

func TestCallback_RejectsBadState(t *testing.T) {
	e := newEnv(t, Options{})
	state, cookies := e.startLogin(t)

	rec := e.do(callbackReq(state+"x", "abc", cookies))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(callbackReq(state, "abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	forged, err := signState([]byte("other-key"), "fake", time.Now())
	require.NoError(t, err)
	forgedCookies := []*http.Cookie{{Name: stateCookie, Value: forged}, {Name: pkceCookie, Value: "v"}}
	rec = e.do(callbackReq(forged, "abc", forgedCookies))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallback_ExchangeFailure(t *testing.T) {
	e := newEnv(t, Options{})
	e.idp.fail = true
	state, cookies := e.startLogin(t)
	rec := e.do(callbackReq(state, "abc", cookies))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_Throttled(t *testing.T) {
	e := newEnv(t, Options{Limiter: limiter.NewMemory(time.Hour, 1)})
	state, cookies := e.startLogin(t)
	require.Equal(t, http.StatusOK, e.do(callbackReq(state, "abc", cookies)).Code)

	state, cookies = e.startLogin(t)
	rec := e.do(callbackReq(state, "abc", cookies))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnknownProvider(t *testing.T) {
	e := newEnv(t, Options{})
	rec := e.do(httptest.NewRequest(http.MethodGet, "/oauth/login/gitlab", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestState_ExpiryAndProvider(t *testing.T) {
	key := []byte("k")
	now := time.Now()
	tok, err := signState(key, "github", now)
	require.NoError(t, err)
	require.NoError(t, verifyState(key, tok, "github", now.Add(time.Minute)))
	require.ErrorIs(t, verifyState(key, tok, "oidc", now), errBadState)
	require.ErrorIs(t, verifyState(key, tok, "github", now.Add(flowTTL+time.Second)), errBadState)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, Options{DB: pinger{}})
	require.Equal(t, http.StatusOK, e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)

	e = newEnv(t, Options{DB: pinger{err: errors.New("down")}})
	require.Equal(t, http.StatusServiceUnavailable, e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestBearerToken(t *testing.T) {
	require.Equal(t, "abc", BearerToken("Bearer abc"))
	require.Equal(t, "abc", BearerToken("bearer  abc "))
	require.Empty(t, BearerToken("Basic abc"))
	require.Empty(t, BearerToken(""))
}
