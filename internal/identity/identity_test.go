package identity

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	p := NewProvider("s3cret", "odyssey")
	token, err := p.Issue(shared.Principal{UserID: 12, CompanyIDs: []int64{1, 2}}, time.Minute)
	require.NoError(t, err)

	principal, err := p.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(12), principal.UserID)
	assert.Equal(t, []int64{1, 2}, principal.CompanyIDs)
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewProvider("s3cret", "odyssey")
	token, err := issuer.Issue(shared.Principal{UserID: 1}, time.Minute)
	require.NoError(t, err)

	_, err = NewProvider("other", "odyssey").Parse(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = NewProvider("s3cret", "someone-else").Parse(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	late := NewProvider("s3cret", "odyssey")
	late.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = late.Parse(token)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestMiddlewareStoresPrincipal(t *testing.T) {
	p := NewProvider("s3cret", "")
	token, err := p.Issue(shared.Principal{UserID: 5, CompanyIDs: []int64{9}}, time.Minute)
	require.NoError(t, err)

	var got shared.Principal
	h := Middleware(p, slog.New(slog.NewTextHandler(io.Discard, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, int64(5), got.UserID)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
