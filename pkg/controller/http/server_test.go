package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/controller/http"
	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/repository/memory"
	"github.com/LalaIAm/case-agent/pkg/service/broadcast"
	"github.com/LalaIAm/case-agent/pkg/usecase"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
)

const testDimension = 32

type hashEmbedder struct{}

func (hashEmbedder) Dimension() int { return testDimension }

func (hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDimension)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,!?$")))
		vec[h.Sum32()%testDimension]++
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}

type stubProcessor struct {
	stage     types.Stage
	executeFn func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error)
}

func (p *stubProcessor) Stage() types.Stage { return p.stage }

func (p *stubProcessor) Execute(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
	if p.executeFn != nil {
		return p.executeFn(ctx, input, env)
	}
	return model.Completed(model.StageResult{"stage": string(p.stage)}), nil
}

type testServer struct {
	uc         *usecase.UseCases
	server     *http.Server
	processors map[types.Stage]*stubProcessor
}

func newTestServer(t *testing.T, opts ...usecase.Option) *testServer {
	t.Helper()

	processors := make(map[types.Stage]*stubProcessor)
	var list []interfaces.StageProcessor
	for _, s := range types.AllStages() {
		p := &stubProcessor{stage: s}
		processors[s] = p
		list = append(list, p)
	}

	cfg := usecase.DefaultConfig()
	cfg.Workflow.StageTimeout = 5 * time.Second
	cfg.Workflow.Retry = retry.Policy{MaxAttempts: 3}

	b := broadcast.New()
	uc := usecase.New(memory.New(), append([]usecase.Option{
		usecase.WithEmbedder(hashEmbedder{}),
		usecase.WithPublisher(b),
		usecase.WithProcessors(list...),
		usecase.WithConfig(cfg),
	}, opts...)...)
	t.Cleanup(uc.Workflow.Wait)
	t.Cleanup(b.Close)

	return &testServer{
		uc:         uc,
		server:     http.New(uc, http.WithBroadcaster(b), http.WithHeartbeat(50*time.Millisecond)),
		processors: processors,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body)).Required()
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &v)).Required()
	return v
}

func (ts *testServer) createCase(t *testing.T, description string) string {
	t.Helper()
	w := ts.do(t, "POST", "/api/cases", map[string]string{
		"owner_id":    "owner-1",
		"title":       "Deposit dispute",
		"description": description,
	})
	gt.Number(t, w.Code).Equal(201)
	return decode[map[string]any](t, w)["id"].(string)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, "GET", "/health", nil)
	gt.Number(t, w.Code).Equal(200)
	gt.Value(t, decode[map[string]string](t, w)["status"]).Equal("ok")
}

func TestCaseEndpoints(t *testing.T) {
	ts := newTestServer(t)
	caseID := ts.createCase(t, "  Landlord kept my deposit  ")

	t.Run("get case", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/cases/"+caseID, nil)
		gt.Number(t, w.Code).Equal(200)
		got := decode[map[string]any](t, w)
		gt.Value(t, got["description"]).Equal("Landlord kept my deposit")
		gt.Value(t, got["status"]).Equal("draft")
	})

	t.Run("unknown case is 404", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/cases/no-such-case", nil)
		gt.Number(t, w.Code).Equal(404)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/cases", strings.NewReader("{not json"))
		w := httptest.NewRecorder()
		ts.server.ServeHTTP(w, req)
		gt.Number(t, w.Code).Equal(400)
	})

	t.Run("documents", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/cases/"+caseID+"/documents", map[string]string{
			"filename": "receipt.txt",
			"content":  "Received $900 deposit",
		})
		gt.Number(t, w.Code).Equal(201)

		w = ts.do(t, "POST", "/api/cases/"+caseID+"/documents", map[string]string{"filename": "empty.txt", "content": " "})
		gt.Number(t, w.Code).Equal(400)

		w = ts.do(t, "GET", "/api/cases/"+caseID+"/documents", nil)
		gt.Number(t, w.Code).Equal(200)
		docs := decode[[]map[string]any](t, w)
		gt.Array(t, docs).Length(1)
		gt.Value(t, docs[0]["filename"]).Equal("receipt.txt")
		gt.Value(t, docs[0]["kind"]).Equal("uploaded")

		w = ts.do(t, "GET", "/api/cases/"+caseID+"/documents?kind=bogus", nil)
		gt.Number(t, w.Code).Equal(400)
	})
}

func TestWorkflowEndpoints(t *testing.T) {
	ts := newTestServer(t)
	caseID := ts.createCase(t, "Landlord kept my deposit")

	entered := make(chan struct{})
	release := make(chan struct{})
	ts.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		close(entered)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return model.Completed(model.StageResult{"facts_extracted": 0}), nil
	}

	w := ts.do(t, "POST", "/api/cases/"+caseID+"/workflow", nil)
	gt.Number(t, w.Code).Equal(202)
	gt.Value(t, decode[map[string]any](t, w)["status"]).Equal("started")

	w = ts.do(t, "POST", "/api/cases/"+caseID+"/workflow", map[string]any{})
	gt.Number(t, w.Code).Equal(409)

	<-entered
	w = ts.do(t, "GET", "/api/cases/"+caseID+"/workflow", nil)
	gt.Number(t, w.Code).Equal(200)
	gt.Value(t, decode[map[string]any](t, w)["workflow_status"]).Equal("running")

	close(release)
	ts.uc.Workflow.Wait()

	w = ts.do(t, "GET", "/api/cases/"+caseID+"/workflow", nil)
	state := decode[map[string]any](t, w)
	gt.Value(t, state["workflow_status"]).Equal("completed")
	gt.Value(t, state["progress"]).Equal(100.0)

	w = ts.do(t, "GET", "/api/cases/"+caseID+"/runs", nil)
	gt.Number(t, w.Code).Equal(200)
	runs := decode[[]map[string]any](t, w)
	gt.Array(t, runs).Length(types.StageCount)
	gt.Value(t, runs[0]["stage"]).Equal("intake")
	gt.Value(t, runs[4]["status"]).Equal("completed")

	t.Run("unknown stage is 400", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/cases/"+caseID+"/workflow", map[string]any{"stage": "appeal"})
		gt.Number(t, w.Code).Equal(400)
	})

	t.Run("single stage", func(t *testing.T) {
		ts.processors[types.StageIntake].executeFn = nil
		w := ts.do(t, "POST", "/api/cases/"+caseID+"/workflow", map[string]any{"stage": "research"})
		gt.Number(t, w.Code).Equal(202)
		ts.uc.Workflow.Wait()

		w = ts.do(t, "GET", "/api/cases/"+caseID+"/runs", nil)
		gt.Array(t, decode[[]map[string]any](t, w)).Length(types.StageCount + 1)
	})

	t.Run("unknown case is 404", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/cases/missing/workflow", nil)
		gt.Number(t, w.Code).Equal(404)
	})
}

func TestMemoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	caseID := ts.createCase(t, "Landlord kept my deposit")

	w := ts.do(t, "POST", "/api/cases/"+caseID+"/sessions", nil)
	gt.Number(t, w.Code).Equal(200)
	session := decode[map[string]any](t, w)
	sessionID := session["id"].(string)
	gt.Value(t, session["sequence"]).Equal(1.0)

	w = ts.do(t, "POST", "/api/cases/"+caseID+"/sessions", nil)
	gt.Value(t, decode[map[string]any](t, w)["id"]).Equal(sessionID)

	w = ts.do(t, "POST", "/api/sessions/"+sessionID+"/blocks", map[string]any{
		"type":     "fact",
		"content":  "Tenant paid a $900 deposit",
		"metadata": map[string]any{"fact_type": "claim", "confidence_score": 0.9},
	})
	gt.Number(t, w.Code).Equal(201)
	fact := decode[map[string]any](t, w)
	factID := fact["id"].(string)

	w = ts.do(t, "POST", "/api/sessions/"+sessionID+"/blocks", map[string]any{
		"type":    "evidence",
		"content": "Bank statement shows the deposit payment",
	})
	gt.Number(t, w.Code).Equal(201)
	evidenceID := decode[map[string]any](t, w)["id"].(string)

	t.Run("invalid block is 400", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/sessions/"+sessionID+"/blocks", map[string]any{"type": "opinion", "content": "x"})
		gt.Number(t, w.Code).Equal(400)
		w = ts.do(t, "POST", "/api/sessions/"+sessionID+"/blocks", map[string]any{
			"type":     "fact",
			"content":  "x",
			"metadata": map[string]any{"confidence_score": 3},
		})
		gt.Number(t, w.Code).Equal(400)
	})

	t.Run("list with type filter", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/sessions/"+sessionID+"/blocks?type=evidence", nil)
		gt.Number(t, w.Code).Equal(200)
		blocks := decode[[]map[string]any](t, w)
		gt.Array(t, blocks).Length(1)
		gt.Value(t, blocks[0]["id"]).Equal(evidenceID)

		w = ts.do(t, "GET", "/api/sessions/"+sessionID+"/blocks", nil)
		gt.Array(t, decode[[]map[string]any](t, w)).Length(2)
	})

	t.Run("summary", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/sessions/"+sessionID+"/summary", nil)
		gt.Number(t, w.Code).Equal(200)
		summary := decode[map[string]any](t, w)
		gt.Value(t, summary["total"]).Equal(2.0)
		gt.Value(t, summary["counts"].(map[string]any)["fact"]).Equal(1.0)
	})

	t.Run("link and related", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/blocks/"+evidenceID+"/links", map[string]any{"related": []string{factID}})
		gt.Number(t, w.Code).Equal(200)

		w = ts.do(t, "GET", "/api/blocks/"+evidenceID+"/related", nil)
		gt.Number(t, w.Code).Equal(200)
		related := decode[[]map[string]any](t, w)
		gt.Array(t, related).Length(1)
		gt.Value(t, related[0]["id"]).Equal(factID)

		w = ts.do(t, "POST", "/api/blocks/"+evidenceID+"/links", map[string]any{"related": []string{evidenceID}})
		gt.Number(t, w.Code).Equal(400)
	})

	t.Run("search the case", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/cases/"+caseID+"/search", map[string]any{"query": "Tenant paid a $900 deposit", "limit": 5})
		gt.Number(t, w.Code).Equal(200)
		hits := decode[[]map[string]any](t, w)
		gt.Bool(t, len(hits) >= 1).True()
		gt.Value(t, hits[0]["id"]).Equal(factID)
		gt.Value(t, hits[0]["similarity"]).NotEqual(nil)

		w = ts.do(t, "POST", "/api/cases/"+caseID+"/search", map[string]any{
			"query":      "deposit",
			"scope":      "session",
			"session_id": sessionID,
			"types":      []string{"evidence"},
		})
		gt.Number(t, w.Code).Equal(200)
		hits = decode[[]map[string]any](t, w)
		gt.Array(t, hits).Length(1)

		w = ts.do(t, "POST", "/api/cases/"+caseID+"/search", map[string]any{"query": "deposit", "scope": "world"})
		gt.Number(t, w.Code).Equal(400)
	})

	t.Run("update and delete", func(t *testing.T) {
		w := ts.do(t, "PATCH", "/api/blocks/"+factID, map[string]any{"content": "Tenant paid a $950 deposit"})
		gt.Number(t, w.Code).Equal(200)
		gt.Value(t, decode[map[string]any](t, w)["content"]).Equal("Tenant paid a $950 deposit")

		w = ts.do(t, "DELETE", "/api/blocks/"+factID, nil)
		gt.Number(t, w.Code).Equal(204)

		w = ts.do(t, "GET", "/api/blocks/"+factID, nil)
		gt.Number(t, w.Code).Equal(404)

		w = ts.do(t, "GET", "/api/blocks/"+evidenceID+"/related", nil)
		gt.Array(t, decode[[]map[string]any](t, w)).Length(0)
	})
}

func TestRuleEndpoints(t *testing.T) {
	ts := newTestServer(t)

	t.Run("static keyword search", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/rules/search?q=monetary+limit&case_law=false", nil)
		gt.Number(t, w.Code).Equal(200)
		got := decode[map[string][]map[string]any](t, w)
		gt.Bool(t, len(got["static_rules"]) >= 1).True()
		gt.Value(t, got["static_rules"][0]["id"]).Equal("jurisdiction_monetary_general")
		gt.Array(t, got["case_law"]).Length(0)
	})

	t.Run("add and find case law", func(t *testing.T) {
		w := ts.do(t, "POST", "/api/rules", map[string]string{
			"type":    "case_law",
			"title":   "Deposit penalty",
			"content": "Bad faith retention of a security deposit allows a penalty",
			"source":  "Example v. Example",
		})
		gt.Number(t, w.Code).Equal(201)
		gt.Value(t, decode[map[string]any](t, w)["jurisdiction"]).NotEqual("")

		w = ts.do(t, "GET", "/api/rules/search?q=Deposit+penalty+Bad+faith+retention+of+a+security+deposit+allows+a+penalty&static=false&min_similarity=0.5", nil)
		gt.Number(t, w.Code).Equal(200)
		got := decode[map[string][]map[string]any](t, w)
		gt.Array(t, got["case_law"]).Length(1)
		gt.Value(t, got["case_law"][0]["title"]).Equal("Deposit penalty")
	})

	t.Run("invalid input", func(t *testing.T) {
		gt.Number(t, ts.do(t, "GET", "/api/rules/search?q=", nil).Code).Equal(400)
		gt.Number(t, ts.do(t, "GET", "/api/rules/search?q=fee&static=maybe", nil).Code).Equal(400)
		gt.Number(t, ts.do(t, "POST", "/api/rules", map[string]string{"type": "gossip", "title": "a", "content": "b"}).Code).Equal(400)
	})

	t.Run("static rule lookup", func(t *testing.T) {
		w := ts.do(t, "GET", "/api/rules/static/jurisdiction_monetary_general", nil)
		gt.Number(t, w.Code).Equal(200)
		gt.Number(t, ts.do(t, "GET", "/api/rules/static/unknown", nil).Code).Equal(404)
	})
}

type echoLLM struct{}

func (echoLLM) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	return echoSession{}, nil
}

func (echoLLM) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	return nil, nil
}

type echoSession struct{}

func (echoSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	return &gollem.Response{Texts: []string{"Bring the lease and the receipt."}}, nil
}

func (echoSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (echoSession) History() (*gollem.History, error) { return nil, nil }

func (echoSession) AppendHistory(*gollem.History) error { return nil }

func (echoSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

func TestAdvisorEndpoints(t *testing.T) {
	ts := newTestServer(t, usecase.WithLLMClient(echoLLM{}))
	caseID := ts.createCase(t, "Landlord kept my deposit")
	base := "/api/cases/" + caseID + "/advisor"

	w := ts.do(t, "POST", "/api/cases/"+caseID+"/sessions", nil)
	sessionID := decode[map[string]any](t, w)["id"].(string)
	w = ts.do(t, "POST", "/api/sessions/"+sessionID+"/blocks", map[string]any{
		"type":    "question",
		"content": "Do you have a copy of the lease?",
	})
	gt.Number(t, w.Code).Equal(201)

	t.Run("message", func(t *testing.T) {
		w := ts.do(t, "POST", base+"/message", map[string]any{"message": "What should I bring to court?"})
		gt.Number(t, w.Code).Equal(200)
		got := decode[map[string]map[string]any](t, w)
		gt.Value(t, got["question"]["role"]).Equal("user")
		gt.Value(t, got["answer"]["role"]).Equal("assistant")
		gt.Value(t, got["answer"]["content"]).Equal("Bring the lease and the receipt.")

		w = ts.do(t, "POST", base+"/message", map[string]any{"message": " "})
		gt.Number(t, w.Code).Equal(400)
		w = ts.do(t, "POST", "/api/cases/missing/advisor/message", map[string]any{"message": "hi"})
		gt.Number(t, w.Code).Equal(404)
	})

	t.Run("history", func(t *testing.T) {
		w := ts.do(t, "GET", base+"/history?limit=10", nil)
		gt.Number(t, w.Code).Equal(200)
		msgs := decode[[]map[string]any](t, w)
		gt.Array(t, msgs).Length(2).Required()
		gt.Value(t, msgs[0]["role"]).Equal("assistant")

		gt.Number(t, ts.do(t, "GET", base+"/history?limit=abc", nil).Code).Equal(400)
		gt.Number(t, ts.do(t, "GET", base+"/history?limit=500", nil).Code).Equal(400)
	})

	t.Run("suggestions", func(t *testing.T) {
		w := ts.do(t, "GET", base+"/suggestions", nil)
		gt.Number(t, w.Code).Equal(200)
		got := decode[map[string][]string](t, w)
		gt.Value(t, got["suggestions"]).Equal([]string{"Do you have a copy of the lease?"})
	})

	t.Run("clear history", func(t *testing.T) {
		w := ts.do(t, "DELETE", base+"/history", nil)
		gt.Number(t, w.Code).Equal(200)
		gt.Value(t, decode[map[string]int](t, w)["deleted"]).Equal(2)

		w = ts.do(t, "GET", base+"/history", nil)
		gt.Array(t, decode[[]map[string]any](t, w)).Length(0)
	})

	t.Run("reanalyze", func(t *testing.T) {
		w := ts.do(t, "POST", base+"/reanalyze", map[string]any{"stage": "strategy"})
		gt.Number(t, w.Code).Equal(202)
		gt.Value(t, decode[map[string]any](t, w)["status"]).Equal("started")
		ts.uc.Workflow.Wait()
	})
}

func TestAdvisorWithoutModel(t *testing.T) {
	ts := newTestServer(t)
	caseID := ts.createCase(t, "")
	w := ts.do(t, "POST", "/api/cases/"+caseID+"/advisor/message", map[string]any{"message": "hello"})
	gt.Number(t, w.Code).Equal(503)
}

func TestEventStream(t *testing.T) {
	ts := newTestServer(t)
	caseID := ts.createCase(t, "Landlord kept my deposit")

	srv := httptest.NewServer(ts.server)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/cases/" + caseID

	t.Run("unknown case is rejected before upgrade", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/cases/missing", nil)
		gt.Error(t, err)
		gt.Value(t, resp).NotNil()
		gt.Number(t, resp.StatusCode).Equal(404)
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	gt.NoError(t, err).Required()
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot model.Event
	gt.NoError(t, conn.ReadJSON(&snapshot)).Required()
	gt.Value(t, snapshot.Type).Equal(types.EventWorkflowUpdate)
	gt.Value(t, snapshot.Workflow.Status).Equal(types.WorkflowStatusIdle)

	ts.processors[types.StageIntake].executeFn = func(ctx context.Context, input *model.StageInput, env interfaces.StageEnv) (*model.StageOutput, error) {
		env.Reasoning.LogReasoning(ctx, input.RunID, "reading the description")
		return model.Completed(model.StageResult{}), nil
	}
	w := ts.do(t, "POST", "/api/cases/"+caseID+"/workflow", nil)
	gt.Number(t, w.Code).Equal(202)

	var received []model.Event
	for {
		var ev model.Event
		gt.NoError(t, conn.ReadJSON(&ev)).Required()
		received = append(received, ev)
		if ev.Type == types.EventWorkflowUpdate && ev.Workflow != nil && ev.Workflow.Status == types.WorkflowStatusCompleted {
			break
		}
	}

	gt.Value(t, received[0].Type).Equal(types.EventStageStarted)
	gt.Value(t, received[0].Stage).Equal(types.StageIntake)

	var progress []string
	for _, ev := range received {
		if ev.Type == types.EventStageProgress {
			progress = append(progress, ev.Reasoning)
		}
	}
	gt.Value(t, progress).Equal([]string{"reading the description"})
	gt.Number(t, received[len(received)-1].Progress).Equal(100)
}
