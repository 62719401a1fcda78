package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/osvaldoandrade/riskdesk/internal/services"
	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	services.SessionService
	busy     bool
	lastRisk domain.RiskType
	closed   string
}

func (f *fakeSessions) Open(ctx context.Context, owner string) (services.SessionInfo, error) {
	return services.SessionInfo{ID: "s1", Owner: owner}, nil
}

func (f *fakeSessions) Get(owner, id string) (services.SessionInfo, []workflow.View, error) {
	if id != "s1" || owner != "alice" {
		return services.SessionInfo{}, nil, services.ErrSessionNotFound
	}
	return services.SessionInfo{ID: id, Owner: owner}, []workflow.View{{RiskType: domain.RiskTrading, Control: workflow.ControlReady}}, nil
}

func (f *fakeSessions) List(owner string) []services.SessionInfo {
	return []services.SessionInfo{{ID: "s1", Owner: owner}}
}

func (f *fakeSessions) Feature(owner, id string, rt domain.RiskType) (workflow.View, error) {
	if id != "s1" {
		return workflow.View{}, services.ErrSessionNotFound
	}
	return workflow.View{RiskType: rt, Control: workflow.ControlReady}, nil
}

func (f *fakeSessions) Trigger(ctx context.Context, owner, id string, rt domain.RiskType) (workflow.View, error) {
	f.lastRisk = rt
	if f.busy {
		return workflow.View{RiskType: rt, Control: workflow.ControlAwaiting}, services.ErrBusy
	}
	return workflow.View{RiskType: rt, Control: workflow.ControlSubmitting}, nil
}

func (f *fakeSessions) Close(owner, id string) error {
	if id != "s1" {
		return services.ErrSessionNotFound
	}
	f.closed = id
	return nil
}

type fakeArchive struct {
	services.RunArchiveService
	recs   []domain.RunRecord
	limits []int
}

func (f *fakeArchive) Get(ctx context.Context, identifier string) (*domain.RunRecord, error) {
	for _, r := range f.recs {
		if r.Identifier == identifier {
			return &r, nil
		}
	}
	return nil, services.ErrRunNotFound
}

func (f *fakeArchive) Recent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	f.limits = append(f.limits, limit)
	out := append([]domain.RunRecord(nil), f.recs...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func withCaller(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("caller", name)
		c.Next()
	}
}

func newGatewayRouter(sessions services.SessionService, archive services.RunArchiveService) *gin.Engine {
	r := gin.New()
	g := r.Group("/v1/riskdesk", withCaller("alice"))
	g.GET("/features", NewListFeaturesController(domain.DefaultCatalog()).Handle)
	g.POST("/sessions", NewOpenSessionController(sessions).Handle)
	g.GET("/sessions", NewListSessionsController(sessions).Handle)
	g.GET("/sessions/:id", NewGetSessionController(sessions).Handle)
	g.DELETE("/sessions/:id", NewCloseSessionController(sessions).Handle)
	g.GET("/sessions/:id/features/:type", NewGetFeatureController(sessions).Handle)
	g.POST("/sessions/:id/features/:type/run", NewRunFeatureController(sessions).Handle)
	g.GET("/results", NewListRunsController(archive).Handle)
	g.GET("/results/:identifier", NewGetRunController(archive).Handle)
	return r
}

func jsonRequest(method, path, body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(method, path, nil)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	return serve(r, jsonRequest(method, path, body))
}

func TestGatewayControllers(t *testing.T) {
	sessions := &fakeSessions{}
	archive := &fakeArchive{recs: []domain.RunRecord{
		{Identifier: "bb", RiskType: domain.RiskHedgeFund, Outcome: domain.OutcomeFailed, FinishedAt: time.Unix(20, 0)},
		{Identifier: "aa", RiskType: domain.RiskTrading, Outcome: domain.OutcomeCompleted, FinishedAt: time.Unix(10, 0)},
	}}
	r := newGatewayRouter(sessions, archive)

	cases := []struct {
		name   string
		method string
		path   string
		want   int
		check  func(t *testing.T, body map[string]any)
	}{
		{name: "features", method: http.MethodGet, path: "/v1/riskdesk/features", want: http.StatusOK, check: func(t *testing.T, body map[string]any) {
			if n := len(body["features"].([]any)); n != 5 {
				t.Fatalf("features = %d", n)
			}
		}},
		{name: "open", method: http.MethodPost, path: "/v1/riskdesk/sessions", want: http.StatusCreated, check: func(t *testing.T, body map[string]any) {
			if body["session"].(map[string]any)["owner"] != "alice" {
				t.Fatalf("session = %v", body["session"])
			}
		}},
		{name: "list sessions", method: http.MethodGet, path: "/v1/riskdesk/sessions", want: http.StatusOK},
		{name: "get session", method: http.MethodGet, path: "/v1/riskdesk/sessions/s1", want: http.StatusOK},
		{name: "missing session", method: http.MethodGet, path: "/v1/riskdesk/sessions/s9", want: http.StatusNotFound},
		{name: "get feature", method: http.MethodGet, path: "/v1/riskdesk/sessions/s1/features/trading", want: http.StatusOK},
		{name: "unknown feature", method: http.MethodGet, path: "/v1/riskdesk/sessions/s1/features/weather", want: http.StatusNotFound},
		{name: "run", method: http.MethodPost, path: "/v1/riskdesk/sessions/s1/features/HEDGE_FUND/run", want: http.StatusAccepted, check: func(t *testing.T, body map[string]any) {
			if body["feature"].(map[string]any)["control"] != workflow.ControlSubmitting {
				t.Fatalf("feature = %v", body["feature"])
			}
		}},
		{name: "get run", method: http.MethodGet, path: "/v1/riskdesk/results/aa", want: http.StatusOK},
		{name: "missing run", method: http.MethodGet, path: "/v1/riskdesk/results/zz", want: http.StatusNotFound},
		{name: "list runs", method: http.MethodGet, path: "/v1/riskdesk/results?limit=1", want: http.StatusOK, check: func(t *testing.T, body map[string]any) {
			runs := body["runs"].([]any)
			if len(runs) != 1 || runs[0].(map[string]any)["identifier"] != "bb" {
				t.Fatalf("runs = %v", runs)
			}
		}},
		{name: "filter runs", method: http.MethodGet, path: "/v1/riskdesk/results?riskType=trading", want: http.StatusOK, check: func(t *testing.T, body map[string]any) {
			runs := body["runs"].([]any)
			if len(runs) != 1 || runs[0].(map[string]any)["identifier"] != "aa" {
				t.Fatalf("runs = %v", runs)
			}
		}},
		{name: "bad limit", method: http.MethodGet, path: "/v1/riskdesk/results?limit=-1", want: http.StatusBadRequest},
		{name: "close", method: http.MethodDelete, path: "/v1/riskdesk/sessions/s1", want: http.StatusNoContent},
		{name: "close missing", method: http.MethodDelete, path: "/v1/riskdesk/sessions/s9", want: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(r, tc.method, tc.path, "")
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
			if tc.check != nil {
				var body map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				tc.check(t, body)
			}
		})
	}
	if sessions.lastRisk != domain.RiskHedgeFund {
		t.Fatalf("triggered %q", sessions.lastRisk)
	}
	if sessions.closed != "s1" {
		t.Fatalf("closed %q", sessions.closed)
	}
}

func TestRunFeatureController_BusyReturnsConflictWithView(t *testing.T) {
	r := newGatewayRouter(&fakeSessions{busy: true}, &fakeArchive{})
	rec := do(r, http.MethodPost, "/v1/riskdesk/sessions/s1/features/trading/run", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["feature"].(map[string]any)["control"] != workflow.ControlAwaiting {
		t.Fatalf("body = %v", body)
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func TestHealthController(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{errors.New("connection refused"), http.StatusServiceUnavailable},
	} {
		r := gin.New()
		r.GET("/healthz", NewHealthController(fakePinger{tc.err}).Handle)
		if rec := do(r, http.MethodGet, "/healthz", ""); rec.Code != tc.want {
			t.Fatalf("status = %d, want %d", rec.Code, tc.want)
		}
	}
}

func TestListRunsFilterScansWholeWindow(t *testing.T) {
	archive := &fakeArchive{recs: []domain.RunRecord{
		{Identifier: "h3", RiskType: domain.RiskHedgeFund, Outcome: domain.OutcomeCompleted},
		{Identifier: "h2", RiskType: domain.RiskHedgeFund, Outcome: domain.OutcomeCompleted},
		{Identifier: "t2", RiskType: domain.RiskTrading, Outcome: domain.OutcomeCompleted},
		{Identifier: "h1", RiskType: domain.RiskHedgeFund, Outcome: domain.OutcomeFailed},
		{Identifier: "t1", RiskType: domain.RiskTrading, Outcome: domain.OutcomeCompleted},
		{Identifier: "t0", RiskType: domain.RiskTrading, Outcome: domain.OutcomeFailed},
	}}
	r := newGatewayRouter(&fakeSessions{}, archive)

	rec := do(r, http.MethodGet, "/v1/riskdesk/results?limit=2&riskType=trading", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Runs []domain.RunRecord `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Runs) != 2 || body.Runs[0].Identifier != "t2" || body.Runs[1].Identifier != "t1" {
		t.Fatalf("runs = %+v", body.Runs)
	}
	if len(archive.limits) != 1 || archive.limits[0] != 0 {
		t.Fatalf("Recent limits = %v, want [0]", archive.limits)
	}
}
