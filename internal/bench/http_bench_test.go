package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/osvaldoandrade/riskdesk/internal/workflow"
	"github.com/osvaldoandrade/riskdesk/pkg/app"
	_ "github.com/osvaldoandrade/riskdesk/pkg/auth/static" // Register static auth provider.
	"github.com/osvaldoandrade/riskdesk/pkg/config"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

const (
	benchToken         = "bench-operator-token"
	benchSubject       = "bench-operator"
	benchPurchaseToken = "bench-purchase-token"
)

func newBenchApp(b *testing.B) *app.Application {
	b.Helper()
	gin.SetMode(gin.ReleaseMode)

	mr, err := miniredis.Run()
	if err != nil {
		b.Fatalf("miniredis start: %v", err)
	}
	b.Cleanup(mr.Close)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		b.Fatalf("config: %v", err)
	}
	cfg.Env = "dev"
	cfg.LogLevel = "error"
	cfg.Simulator.Enabled = true
	cfg.Simulator.CompleteAfterPolls = 1
	cfg.Simulator.Token = benchPurchaseToken
	cfg.Agent.Payment.Token = benchPurchaseToken
	// Benchmarks keep rate limiting disabled.
	cfg.RateLimit = config.RateLimitConfig{}

	authCfg, _ := json.Marshal(map[string]any{
		"token":   benchToken,
		"subject": benchSubject,
		"email":   "bench@riskdesk.local",
	})
	cfg.AuthProvider = "static"
	cfg.AuthConfig = string(authCfg)

	a, err := app.NewApplication(cfg,
		app.WithRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})),
		app.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		b.Fatalf("app init: %v", err)
	}
	app.SetupMappings(a)
	b.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func doJSONRequest(b *testing.B, h http.Handler, method, path string, header http.Header, body []byte) (int, []byte) {
	b.Helper()

	var rbody *bytes.Reader
	if body == nil {
		rbody = bytes.NewReader([]byte{})
	} else {
		rbody = bytes.NewReader(body)
	}

	req := httptest.NewRequest(method, path, rbody)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.Bytes()
}

func bearer() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + benchToken}}
}

func BenchmarkHTTP_SimulatorJobLifecycle(b *testing.B) {
	a := newBenchApp(b)
	purchaseHeader := http.Header{a.Config.Agent.Payment.TokenHeader: []string{benchPurchaseToken}}
	jobReq := domain.JobRequest{
		IdentifierFromPurchaser: "bench00000000001",
		RiskType:                domain.RiskTrading,
		InputData:               map[string]any{"token_symbol": "ETH", "time_period": "6 months"},
	}
	startBody, _ := json.Marshal(jobReq)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doJSONRequest(b, a.Engine, http.MethodPost, "/v1/agent/start_job", nil, startBody)
		if status != http.StatusOK {
			b.Fatalf("start_job status %d body=%s", status, string(resp))
		}
		var desc domain.JobDescriptor
		if err := json.Unmarshal(resp, &desc); err != nil || desc.JobID == "" {
			b.Fatalf("start_job parse failed: err=%v body=%s", err, string(resp))
		}

		payBody, _ := json.Marshal(domain.NewPaymentRequest(jobReq, desc, a.Config.Agent.Payment))
		status, resp = doJSONRequest(b, a.Engine, http.MethodPost, "/v1/agent/purchase", purchaseHeader, payBody)
		if status != http.StatusOK {
			b.Fatalf("purchase status %d body=%s", status, string(resp))
		}

		status, resp = doJSONRequest(b, a.Engine, http.MethodGet, "/v1/agent/status?job_id="+desc.JobID, nil, nil)
		if status != http.StatusOK {
			b.Fatalf("status status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkHTTP_SessionOpenGetClose(b *testing.B) {
	a := newBenchApp(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		status, resp := doJSONRequest(b, a.Engine, http.MethodPost, "/v1/riskdesk/sessions", bearer(), nil)
		if status != http.StatusCreated {
			b.Fatalf("open status %d body=%s", status, string(resp))
		}
		var opened struct {
			Session struct {
				ID string `json:"id"`
			} `json:"session"`
		}
		if err := json.Unmarshal(resp, &opened); err != nil || opened.Session.ID == "" {
			b.Fatalf("open parse failed: err=%v body=%s", err, string(resp))
		}

		status, resp = doJSONRequest(b, a.Engine, http.MethodGet, "/v1/riskdesk/sessions/"+opened.Session.ID+"/features/trading", bearer(), nil)
		if status != http.StatusOK {
			b.Fatalf("feature status %d body=%s", status, string(resp))
		}

		status, resp = doJSONRequest(b, a.Engine, http.MethodDelete, "/v1/riskdesk/sessions/"+opened.Session.ID, bearer(), nil)
		if status != http.StatusNoContent {
			b.Fatalf("close status %d body=%s", status, string(resp))
		}
	}
}

func BenchmarkArchive_ObserveRecent(b *testing.B) {
	a := newBenchApp(b)
	ctx := context.Background()
	started := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Runs.Observe(workflow.Transition{
			RiskType: domain.RiskLendingBorrowing,
			Title:    "Lending and Borrowing Risk Assessment",
			From:     workflow.AwaitingPayment{},
			To: workflow.Completed{
				Identifier:  "bench-" + strconv.Itoa(i),
				Result:      map[string]any{"risk_score_raw": i % 101},
				StartedAt:   started,
				CompletedAt: started.Add(time.Duration(i) * time.Millisecond),
			},
		})
		if _, err := a.Runs.Recent(ctx, 20); err != nil {
			b.Fatalf("Recent: %v", err)
		}
	}
}
