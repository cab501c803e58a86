package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ranklens/ranklens/internal/config"
	"github.com/ranklens/ranklens/internal/store/sqlite"
	"github.com/ranklens/ranklens/internal/tracker"
)

type fakeRefresher struct {
	batches [][]tracker.Keyword
	err     error
}

func (f *fakeRefresher) RefreshBatch(_ context.Context, keywords []tracker.Keyword, _ tracker.Settings) ([]tracker.Keyword, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, keywords)
	out := make([]tracker.Keyword, len(keywords))
	copy(out, keywords)
	for i := range out {
		out[i].Position = 1
	}
	return out, nil
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *sqlite.Store, *fakeRefresher) {
	t.Helper()
	s, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	refresher := &fakeRefresher{}
	srv := NewServer(s, s, refresher, tracker.Settings{ScraperID: "serpapi"}, cfg, zap.NewNop())
	return srv, s, refresher
}

func seed(t *testing.T, s *sqlite.Store) tracker.Keyword {
	t.Helper()
	require.NoError(t, s.InsertDomain(context.Background(), tracker.Domain{Name: "x.com", ScrapeEnabled: true}))
	k := tracker.Keyword{Keyword: "alpha", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"}
	id, err := s.InsertKeyword(context.Background(), k)
	require.NoError(t, err)
	k.ID = id
	return k
}

func doRequest(srv *Server, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, config.Config{})
	rec := doRequest(srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, config.Config{})
	rec := doRequest(srv, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListDomains(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t, config.Config{})
	seed(t, store)

	rec := doRequest(srv, http.MethodGet, "/v1/domains", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Domains []tracker.Domain `json:"domains"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Domains, 1)
	require.Equal(t, "x.com", resp.Domains[0].Name)
}

func TestListKeywords(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t, config.Config{})
	k := seed(t, store)

	rec := doRequest(srv, http.MethodGet, "/v1/domains/x.com/keywords", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keywords []tracker.Keyword `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Keywords, 1)
	require.Equal(t, k.ID, resp.Keywords[0].ID)
}

func TestListKeywords_UnknownDomain(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t, config.Config{})
	rec := doRequest(srv, http.MethodGet, "/v1/domains/nope.com/keywords", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetKeyword(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t, config.Config{})
	k := seed(t, store)

	rec := doRequest(srv, http.MethodGet, "/v1/keywords/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Keyword tracker.Keyword `json:"keyword"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, k.Keyword, resp.Keyword.Keyword)

	rec = doRequest(srv, http.MethodGet, "/v1/keywords/999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/keywords/junk", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_ByIDs(t *testing.T) {
	t.Parallel()

	srv, store, refresher := newTestServer(t, config.Config{})
	k := seed(t, store)

	body := []byte(`{"ids":[1]}`)
	rec := doRequest(srv, http.MethodPost, "/v1/refresh", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, refresher.batches, 1)
	require.Equal(t, k.ID, refresher.batches[0][0].ID)

	var resp struct {
		Keywords []tracker.Keyword `json:"keywords"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Keywords[0].Position)
}

func TestRefresh_ByDomain(t *testing.T) {
	t.Parallel()

	srv, store, refresher := newTestServer(t, config.Config{})
	seed(t, store)

	rec := doRequest(srv, http.MethodPost, "/v1/refresh", []byte(`{"domain":"x.com"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, refresher.batches, 1)
}

func TestRefresh_BadRequests(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t, config.Config{})
	seed(t, store)

	// Neither ids nor domain.
	rec := doRequest(srv, http.MethodPost, "/v1/refresh", []byte(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Both at once.
	rec = doRequest(srv, http.MethodPost, "/v1/refresh", []byte(`{"ids":[1],"domain":"x.com"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing matched.
	rec = doRequest(srv, http.MethodPost, "/v1/refresh", []byte(`{"ids":[42]}`))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/v1/refresh", []byte(`not json`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	srv, store, _ := newTestServer(t, config.Config{APIKey: "sekrit"})
	seed(t, store)

	rec := doRequest(srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/v1/domains", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/domains", nil)
	req.Header.Set("X-API-Key", "sekrit")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Query parameter form accepted too.
	rec = doRequest(srv, http.MethodGet, "/v1/domains?api_key=sekrit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
