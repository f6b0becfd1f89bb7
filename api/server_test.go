package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/presswatch/dataset"
	"github.com/pevans/presswatch/dates"
	"github.com/pevans/presswatch/release"
)

// Test helper: create a server over a seeded CSV store
func setupTestServer(t *testing.T) (http.Handler, dataset.Store) {
	store, err := dataset.Open(dataset.BackendCSV, filepath.Join(t.TempDir(), "master.csv"), dataset.KeyCompanyTitleDate)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.Append(ctx, "Bell", []release.Candidate{
		{Title: "Bell expands fibre", Link: "https://bce.test/1", Date: dates.Parse("2025-03-01")},
		{Title: "Bell names new CEO", Link: "https://bce.test/2", Date: dates.Parse("2025-04-10")},
	})
	require.NoError(t, err)
	_, err = store.Append(ctx, "Rogers", []release.Candidate{
		{Title: "Rogers launches 5G+", Link: "https://rogers.test/a", Date: dates.Parse("2025-02-14")},
	})
	require.NoError(t, err)

	return NewServer(store).Router(), store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// TestHealth verifies the liveness endpoint
func TestHealth(t *testing.T) {
	h, _ := setupTestServer(t)

	w := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

// TestListReleases_Defaults verifies newest-first ordering and default
// pagination
func TestListReleases_Defaults(t *testing.T) {
	h, _ := setupTestServer(t)

	w := get(t, h, "/api/v1/releases")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ListReleasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 50, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
	require.Len(t, resp.Releases, 3)
	assert.Equal(t, "Bell names new CEO", resp.Releases[0].Title)
	assert.Equal(t, "Rogers launches 5G+", resp.Releases[2].Title)
}

// TestListReleases_Filters verifies company, date range, sort and paging
// parameters
func TestListReleases_Filters(t *testing.T) {
	h, _ := setupTestServer(t)

	tests := []struct {
		name   string
		target string
		total  int
		titles []string
	}{
		{
			name:   "company",
			target: "/api/v1/releases?company=bell",
			total:  2,
			titles: []string{"Bell names new CEO", "Bell expands fibre"},
		},
		{
			name:   "since",
			target: "/api/v1/releases?since=2025-03-01",
			total:  2,
			titles: []string{"Bell names new CEO", "Bell expands fibre"},
		},
		{
			name:   "until",
			target: "/api/v1/releases?until=2025-02-28",
			total:  1,
			titles: []string{"Rogers launches 5G+"},
		},
		{
			name:   "oldest first",
			target: "/api/v1/releases?sort=date&limit=2",
			total:  3,
			titles: []string{"Rogers launches 5G+", "Bell expands fibre"},
		},
		{
			name:   "offset",
			target: "/api/v1/releases?offset=2",
			total:  3,
			titles: []string{"Rogers launches 5G+"},
		},
		{
			name:   "offset past end",
			target: "/api/v1/releases?offset=10",
			total:  3,
			titles: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, h, tt.target)
			require.Equal(t, http.StatusOK, w.Code)

			var resp ListReleasesResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.total, resp.Total)

			titles := []string{}
			for _, r := range resp.Releases {
				titles = append(titles, r.Title)
			}
			assert.Equal(t, tt.titles, titles)
		})
	}
}

// TestListReleases_LimitCapped verifies oversized limits are clamped
func TestListReleases_LimitCapped(t *testing.T) {
	h, _ := setupTestServer(t)

	w := get(t, h, "/api/v1/releases?limit=5000")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListReleasesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.Limit)
}

// TestListReleases_InvalidParameters verifies bad query values are rejected
func TestListReleases_InvalidParameters(t *testing.T) {
	h, _ := setupTestServer(t)

	for _, target := range []string{
		"/api/v1/releases?since=March",
		"/api/v1/releases?until=2025-13-01",
		"/api/v1/releases?sort=title",
		"/api/v1/releases?limit=0",
		"/api/v1/releases?limit=abc",
		"/api/v1/releases?offset=-1",
	} {
		t.Run(target, func(t *testing.T) {
			w := get(t, h, target)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_parameter", decodeError(t, w).Error.Code)
		})
	}
}

// TestGetRelease verifies single-record lookup and its error cases
func TestGetRelease(t *testing.T) {
	h, store := setupTestServer(t)

	records, err := store.List(context.Background(), dataset.Filter{Company: "Rogers"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	w := get(t, h, "/api/v1/releases/"+records[0].ID)
	require.Equal(t, http.StatusOK, w.Code)
	var rec dataset.MasterRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "Rogers launches 5G+", rec.Title)
	assert.Equal(t, "2025-02-14", rec.Date)

	w = get(t, h, "/api/v1/releases/%20")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decodeError(t, w).Error.Code)

	w = get(t, h, "/api/v1/releases/legacy-404")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = get(t, h, "/api/v1/releases/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Code)
}

// TestListCompanies verifies per-company counts
func TestListCompanies(t *testing.T) {
	h, _ := setupTestServer(t)

	w := get(t, h, "/api/v1/companies")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListCompaniesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Companies, 2)
	assert.Equal(t, "Bell", resp.Companies[0].Company)
	assert.Equal(t, 2, resp.Companies[0].Count)
	assert.Equal(t, "2025-04-10", resp.Companies[0].Latest)
	assert.Equal(t, "Rogers", resp.Companies[1].Company)
}

// TestRouter_NotFoundAndMethod verifies unknown routes and methods use the
// error envelope
func TestRouter_NotFoundAndMethod(t *testing.T) {
	h, _ := setupTestServer(t)

	w := get(t, h, "/api/v1/items")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/releases", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "method_not_allowed", decodeError(t, w).Error.Code)
}

// TestRouter_CORS verifies preflight requests are answered
func TestRouter_CORS(t *testing.T) {
	h, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/releases", nil)
	req.Header.Set("Origin", "https://dashboard.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
