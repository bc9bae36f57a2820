package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/stationmind/stationmind/internal/chitchat"
	"github.com/stationmind/stationmind/internal/conversation"
	"github.com/stationmind/stationmind/internal/intent"
	"github.com/stationmind/stationmind/internal/llm"
	"github.com/stationmind/stationmind/internal/orchestrator"
	"github.com/stationmind/stationmind/internal/retrieval"
	"github.com/stationmind/stationmind/internal/session"
	"github.com/stationmind/stationmind/internal/tool"
)

type cannedGenerator struct{ text string }

func (g *cannedGenerator) Generate(ctx context.Context, _ []conversation.Message, stream llm.StreamFunc) (*llm.Reply, error) {
	if stream != nil {
		if err := stream(ctx, g.text); err != nil {
			return nil, err
		}
	}
	return &llm.Reply{Text: g.text}, nil
}

type cannedRetriever struct{ passages []retrieval.Passage }

func (r *cannedRetriever) Retrieve(context.Context, string, int, float64) ([]retrieval.Passage, error) {
	return r.passages, nil
}

type echoTool struct{ out string }

func (e *echoTool) Name() string { return "uptime_report" }

func (e *echoTool) Invoke(context.Context, map[string]any) (string, error) {
	return e.out, nil
}

func newTestServer(t *testing.T, store session.Store) *Server {
	t.Helper()

	intents := intent.DefaultMap()
	registry := tool.NewRegistry()
	registry.Register(&echoTool{out: `{"uptime":0.99}`})

	handlers := map[intent.Branch]orchestrator.Handler{
		intent.BranchBusiness: orchestrator.NewBusinessHandler(intents,
			tool.NewExecutor(registry, &cannedGenerator{text: "过去一周平均在线率为 99%。"}, 0, nil), nil, nil),
		intent.BranchRetrieval: orchestrator.NewRetrievalHandler(
			retrieval.NewResponder(&cannedRetriever{}, &cannedGenerator{text: "基于文档的回答。"}, 0, 0, nil)),
		intent.BranchChitChat: orchestrator.NewChitChatHandler(
			chitchat.NewResponder(&cannedGenerator{text: "今天深圳多云。"}, nil)),
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Classifier: intent.NewRules(intents),
		Store:      store,
		Handlers:   handlers,
	})
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}

	srv, err := NewServer(ServerConfig{Orchestrator: orch, Sessions: store})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func postChat(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, session.NewMemoryStore())
	rec := postChat(t, srv.Handler(), `{"session_id":"s1","user_input":"今天天气怎么样"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Data    chatData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != 200 || resp.Message != "success" {
		t.Errorf("envelope = %d %q", resp.Code, resp.Message)
	}
	if resp.Data.SessionID != "s1" {
		t.Errorf("session_id = %q", resp.Data.SessionID)
	}
	if resp.Data.UserInput != "今天天气怎么样" {
		t.Errorf("user_input = %q", resp.Data.UserInput)
	}
	if resp.Data.Answer == "" {
		t.Error("answer is empty")
	}
}

func TestChatEndpointRejectsBadRequests(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, session.NewMemoryStore())
	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{"session_id":`},
		{"missing session id", `{"user_input":"你好"}`},
		{"blank session id", `{"session_id":"  ","user_input":"你好"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := postChat(t, srv.Handler(), tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			var resp envelope
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if resp.Code != http.StatusBadRequest {
				t.Errorf("envelope code = %d", resp.Code)
			}
		})
	}
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	srv := newTestServer(t, store)
	h := srv.Handler()

	// One turn creates the session.
	if rec := postChat(t, h, `{"session_id":"s-list","user_input":"你好"}`); rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listResp struct {
		Data []session.Info `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listResp.Data) != 1 || listResp.Data[0].SessionID != "s-list" {
		t.Fatalf("sessions = %+v", listResp.Data)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/s-list", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/s-list", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, session.NewMemoryStore())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestStreamEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, session.NewMemoryStore())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	conn, _, err := websocket.Dial(ctx, ts.URL+"/ws/chat", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req := chatRequest{SessionID: "ws1", UserInput: "今天天气怎么样"}
	data, _ := json.Marshal(req)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}

	var answer strings.Builder
	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    struct {
				Chunk     string `json:"chunk"`
				SessionID string `json:"session_id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if frame.Code != http.StatusOK {
			t.Fatalf("frame code = %d message %q", frame.Code, frame.Message)
		}
		if frame.Message == "stream_end" {
			if frame.Data.SessionID != "ws1" {
				t.Errorf("end frame session_id = %q", frame.Data.SessionID)
			}
			break
		}
		if frame.Data.SessionID != "ws1" {
			t.Errorf("chunk session_id = %q", frame.Data.SessionID)
		}
		answer.WriteString(frame.Data.Chunk)
	}
	if answer.Len() == 0 {
		t.Error("no chunks received before stream_end")
	}
}
