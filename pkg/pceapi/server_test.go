package pceapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcehq/pce/pkg/afs"
	"github.com/pcehq/pce/pkg/ao"
	"github.com/pcehq/pce/pkg/approval"
	"github.com/pcehq/pce/pkg/cci"
	"github.com/pcehq/pce/pkg/de"
	"github.com/pcehq/pce/pkg/epl"
	"github.com/pcehq/pce/pkg/isi"
	"github.com/pcehq/pce/pkg/pcestore"
	"github.com/pcehq/pce/pkg/pipeline"
	core "github.com/pcehq/pce/pkg/plugins/core"
	"github.com/pcehq/pce/pkg/plugins"
	"github.com/pcehq/pce/pkg/plugins/robotics"
	"github.com/pcehq/pce/pkg/transcript"
	"github.com/pcehq/pce/pkg/vel"
)

func newTestServer(t *testing.T) (*Server, *pcestore.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := pcestore.OpenInMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := plugins.NewRegistry(plugins.Domain{
		Name:       core.Name,
		Integrator: core.Integrator{},
		Value:      core.NewValue(core.DefaultStrategicValues()),
		Decision:   core.Decision{},
		Adaptation: core.Adaptation{},
	})
	registry.Register(robotics.New())

	validator, err := epl.New()
	require.NoError(t, err)
	decision, err := de.New(registry, de.Floors{ValueFloor: 0, CCIFloor: 0})
	require.NoError(t, err)
	gate := approval.New(store, robotics.BudgetChecker{Loader: store}, 24*time.Hour)
	cciEngine := cci.New(store, cci.DefaultWeights())
	bcast := transcript.New(store)

	pl := pipeline.New(pipeline.Deps{
		Store:        store,
		Validator:    validator,
		Integrator:   isi.New(registry),
		Evaluator:    vel.New(registry),
		CCI:          cciEngine,
		Decision:     decision,
		Gate:         gate,
		Orchestrator: ao.New(registry),
		Adapter:      afs.New(registry),
		Transcript:   bcast,
	})

	srv := New(Deps{
		Pipeline:       pl,
		Store:          store,
		Gate:           gate,
		CCI:            cciEngine,
		Transcript:     bcast,
		Validator:      validator,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	})
	return srv, store
}

func TestHandleIngestBOM(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	body := `{"event_type":"project.goal.defined","source":"cli","payload":{
		"domain":"os.robotics",
		"components":[{"name":"motor","category":"actuator","quantity":2,"unit_cost":500}]
	}}`
	resp, err := ts.Client().Post(ts.URL+"/v1/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, "os.generate_bom", decoded.ActionType)
	assert.False(t, decoded.RequiresApproval)
}

func TestApprovePurchaseFlow(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	bomBody := `{"event_type":"project.goal.defined","source":"cli","payload":{
		"domain":"os.robotics",
		"components":[{"name":"motor","category":"actuator","quantity":2,"unit_cost":500}]
	}}`
	resp, err := client.Post(ts.URL+"/v1/events", "application/json", strings.NewReader(bomBody))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	purchaseBody := `{"event_type":"purchase.requested","source":"cli","payload":{
		"domain":"os.robotics",
		"purchase_id":"p1",
		"component_id":"c-1",
		"cost":240,
		"projected_cost":240
	}}`
	resp, err = client.Post(ts.URL+"/v1/events", "application/json", strings.NewReader(purchaseBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ingestResp ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ingestResp))
	require.True(t, ingestResp.RequiresApproval)
	require.NotEmpty(t, ingestResp.ApprovalID)

	approveBody := `{"actor":"op","notes":"ok"}`
	resp, err = client.Post(ts.URL+"/os/approvals/"+ingestResp.ApprovalID+"/approve", "application/json", strings.NewReader(approveBody))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	state, err := store.LoadState(context.Background())
	require.NoError(t, err)
	twin := robotics.TwinFromState(state)
	assert.Equal(t, float64(760), twin.BudgetRemaining)
	require.Len(t, twin.PurchaseHistory, 1)
	assert.Equal(t, "completed", twin.PurchaseHistory[0].Status)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	defer ts.Close()

	client := ts.Client()
	resp, err := client.Get(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	resp, err = client.Get(ts.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}
