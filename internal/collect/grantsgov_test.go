package collect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantsGovFetch(t *testing.T) {
	var gotKeyword string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req grantsGovSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotKeyword = req.Keyword

		resp := map[string]any{
			"data": map[string]any{
				"hitCount": 1,
				"oppHits": []map[string]any{{
					"id":           "356001",
					"number":       "HHS-2026-ACF-01",
					"title":        "AI in Public Health",
					"agency":       "HHS",
					"openDate":     "01/15/2026",
					"closeDate":    "06/30/2026",
					"oppStatus":    "posted",
					"awardFloor":   "$50,000",
					"awardCeiling": "$1,500,000",
				}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewGrantsGovCollector(SourceConfig{
		ID:       "grants-gov",
		Strategy: "api_grants_gov",
		BaseURL:  srv.URL,
		Keyword:  "artificial intelligence",
		MaxPages: 1,
	})

	records, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "artificial intelligence", gotKeyword)

	rec := records[0]
	require.Equal(t, "grants-gov", rec.SourceSystem)
	require.Equal(t, "356001", rec.ExternalID)
	require.Equal(t, "AI in Public Health", rec.Title)
	require.Equal(t, "posted", rec.RawStatus)
	require.Equal(t, "USD", rec.Currency)
	require.NotNil(t, rec.Deadline)
	require.Equal(t, 2026, rec.Deadline.Year())
	require.Equal(t, 23, rec.Deadline.Hour())
	require.NotNil(t, rec.BudgetMin)
	require.Equal(t, 50000.0, *rec.BudgetMin)
	require.NotNil(t, rec.BudgetMax)
	require.Equal(t, 1500000.0, *rec.BudgetMax)
}

func TestGrantsGovErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"errorcode": 5, "msg": "bad request"})
	}))
	defer srv.Close()

	c := NewGrantsGovCollector(SourceConfig{ID: "grants-gov", BaseURL: srv.URL, MaxPages: 1})
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad request")
}

func TestParseUSDAmount(t *testing.T) {
	v, ok := parseUSDAmount("$1,500,000")
	require.True(t, ok)
	require.Equal(t, 1500000.0, v)

	_, ok = parseUSDAmount("none")
	require.False(t, ok)
	_, ok = parseUSDAmount("")
	require.False(t, ok)
}
