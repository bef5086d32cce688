package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/souptikmandal/lineagekit/internal/state"
	"github.com/souptikmandal/lineagekit/internal/testutil"
	"github.com/souptikmandal/lineagekit/pkg/core"
	"github.com/souptikmandal/lineagekit/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

// snapshot builds orders.qty -> enrich -> enriched.total with a qty mean.
func snapshot(runID string, createdAt time.Time, qtyMean float64) *core.Snapshot {
	qty := identity.ColumnID("ds_orders", "qty")
	total := identity.ColumnID("ds_enriched", "total")
	return &core.Snapshot{
		Run: core.Run{ID: runID, CreatedAt: createdAt},
		Datasets: []core.DatasetNode{
			{ID: "ds_orders", Name: "orders", Kind: core.DatasetSource, CreatedAt: createdAt},
			{ID: "ds_enriched", Name: "enriched", Kind: core.DatasetTemp, CreatedAt: createdAt},
		},
		Columns: []core.ColumnNode{
			{ID: qty, DatasetID: "ds_orders", Name: "qty", DType: "BIGINT"},
			{ID: total, DatasetID: "ds_enriched", Name: "total", DType: "DOUBLE"},
		},
		Transforms: []core.TransformNode{
			{ID: "tr_enrich", Name: "enrich", Tags: []string{"agg"}, CreatedAt: createdAt},
		},
		DatasetToTransform: []core.DatasetToTransform{{SrcDatasetID: "ds_orders", TransformID: "tr_enrich"}},
		TransformToDataset: []core.TransformToDataset{{TransformID: "tr_enrich", DestDatasetID: "ds_enriched"}},
		ColumnToTransform:  []core.ColumnToTransform{{SrcColumnID: qty, TransformID: "tr_enrich"}},
		TransformToColumn:  []core.TransformToColumn{{TransformID: "tr_enrich", DestColumnID: total}},
		Stats: []core.ColumnStats{
			{DatasetID: "ds_orders", Column: "qty", DType: "BIGINT", Count: 4, Mean: f64(qtyMean), Std: f64(1)},
		},
	}
}

func setupServer(t *testing.T) (*Server, *state.SQLiteStore) {
	t.Helper()
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Persist(ctx, snapshot("run_1", day, 2.5)))
	require.NoError(t, store.Persist(ctx, snapshot("run_2", day.Add(24*time.Hour), 25)))

	return New(store, Options{Logger: testutil.NewTestLogger(t)}), store
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	s, _ := setupServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_ListRuns(t *testing.T) {
	s, _ := setupServer(t)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantIDs  []string
	}{
		{"all", "/api/runs", http.StatusOK, []string{"run_2", "run_1"}},
		{"limited", "/api/runs?limit=1", http.StatusOK, []string{"run_2"}},
		{"bad limit", "/api/runs?limit=zero", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.target)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantIDs == nil {
				return
			}
			var runs []core.Run
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
			ids := make([]string, len(runs))
			for i, r := range runs {
				ids[i] = r.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestServer_GetRun(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/api/runs/run_1")
	require.Equal(t, http.StatusOK, rec.Code)
	var exp state.Export
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
	assert.Equal(t, "run_1", exp.RunID)
	assert.Len(t, exp.Nodes.Datasets, 2)
	assert.Len(t, exp.Edges.ColumnToTransform, 1)

	rec = get(t, s, "/api/runs/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
	assert.Equal(t, "run_2", exp.RunID)

	// unknown runs are empty, not errors
	rec = get(t, s, "/api/runs/nope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"datasets":[]`)
}

func TestServer_LatestRun_Empty(t *testing.T) {
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })

	rec := get(t, New(store, Options{}), "/api/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Diff(t *testing.T) {
	s, _ := setupServer(t)

	rec := get(t, s, "/api/diff?base=run_1")
	require.Equal(t, http.StatusOK, rec.Code)
	var changes []core.Change
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &changes))
	require.Len(t, changes, 1)
	assert.Equal(t, core.ChangeValueShift, changes[0].ChangeType)
	assert.Equal(t, "run_2", changes[0].RunID)

	rec = get(t, s, "/api/diff")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Changes(t *testing.T) {
	s, store := setupServer(t)
	require.NoError(t, store.SaveChanges(context.Background(), []core.Change{{
		RunID:      "run_2",
		BaseRunID:  "run_1",
		NodeKind:   core.NodeColumn,
		NodeID:     identity.ColumnID("ds_orders", "qty"),
		DatasetID:  "ds_orders",
		Column:     "qty",
		ChangeType: core.ChangeValueShift,
		Severity:   core.SeverityMedium,
		Detail:     map[string]any{"mean_delta": 9.0},
		CreatedAt:  time.Now(),
	}}))

	rec := get(t, s, "/api/runs/run_2/changes")
	require.Equal(t, http.StatusOK, rec.Code)
	var changes []core.Change
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &changes))
	assert.Len(t, changes, 1)

	rec = get(t, s, "/api/runs/run_1/changes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestServer_Impact(t *testing.T) {
	s, _ := setupServer(t)
	qty := identity.ColumnID("ds_orders", "qty")

	rec := get(t, s, "/api/runs/run_2/impact?column="+qty+"&change=value_shift")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp impactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, core.SeverityMedium, resp.MaxSeverity, "agg-tagged transform")
	assert.Len(t, resp.Hits, 2)

	rec = get(t, s, "/api/runs/run_2/impact?column="+qty+"&change=exploded")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, s, "/api/runs/run_2/impact?change=value_shift")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(nil, Options{Logger: testutil.NewTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ListenAndServe_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := New(nil, Options{Logger: testutil.NewTestLogger(t)})
	err = s.ListenAndServe(context.Background(), ln.Addr().String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}

func TestServer_CompressesWhenAsked(t *testing.T) {
	s, _ := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}
