package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/repository"
	"github.com/OsoPanda1/isabella/pkg/service/httpapi"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/OsoPanda1/isabella/pkg/utils/metrics"
	"github.com/m-mizutani/gt"
)

type mockLLM struct {
	generateFn func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error)
}

func (m *mockLLM) Generate(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
	return m.generateFn(ctx, input)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	llm := &mockLLM{
		generateFn: func(ctx context.Context, input *adapter.GenerateInput) (*adapter.GenerateOutput, error) {
			return &adapter.GenerateOutput{Content: "¡Qué bien! Hay un concierto hoy", ModelID: "mock"}, nil
		},
	}
	m := metrics.New("isabella_httpapi_test")
	svc, err := assistant.New(repository.NewMemory(), llm, assistant.WithMetrics(m))
	gt.NoError(t, err)

	ts := httptest.NewServer(httpapi.New(svc, m).Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		gt.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	gt.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		gt.NoError(t, json.Unmarshal(raw, &out))
	}
	return res.StatusCode, out
}

func doRaw(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	gt.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	gt.NoError(t, err)
	defer res.Body.Close()

	out := map[string]any{}
	gt.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res.StatusCode, out
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	status, created := do(t, http.MethodPost, ts.URL+"/v1/sessions", map[string]string{"user_id": "alice"})
	gt.Equal(t, status, http.StatusCreated)
	conv, _ := created["conversation_id"].(string)
	gt.NotEqual(t, conv, "")
	base := ts.URL + "/v1/sessions/alice/" + conv

	status, reply := do(t, http.MethodPost, base+"/messages", map[string]string{"message": "hola"})
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, reply["emotion"]).Equal("happy")
	gt.V(t, reply["message"]).Equal("¡Qué bien! Hay un concierto hoy")
	gt.V(t, reply["suggestions"]).Equal([]any{"Ver conciertos"})

	status, history := do(t, http.MethodGet, base+"/history", nil)
	gt.Equal(t, status, http.StatusOK)
	turns, _ := history["turns"].([]any)
	gt.A(t, turns).Length(2)

	status, cfg := do(t, http.MethodPatch, base+"/config", map[string]any{"temperature": 0.3})
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, cfg["temperature"]).Equal(0.3)

	status, _ = do(t, http.MethodPatch, base+"/config", map[string]any{"temperature": 7})
	gt.Equal(t, status, http.StatusBadRequest)

	status, _ = do(t, http.MethodDelete, base+"/history", nil)
	gt.Equal(t, status, http.StatusNoContent)

	status, _ = do(t, http.MethodDelete, base, nil)
	gt.Equal(t, status, http.StatusOK)

	status, notFound := do(t, http.MethodGet, base+"/history", nil)
	gt.Equal(t, status, http.StatusNotFound)
	gt.V(t, notFound["code"]).Equal("session_not_found")
}

func TestProcessMessageValidation(t *testing.T) {
	ts := newTestServer(t)

	status, body := do(t, http.MethodPost, ts.URL+"/v1/sessions/alice/c1/messages", map[string]string{"message": ""})
	gt.Equal(t, status, http.StatusBadRequest)
	gt.V(t, body["code"]).Equal("invalid_request")
}

func TestTruncatedBodyIsNotEmptyBody(t *testing.T) {
	ts := newTestServer(t)

	// an empty body reaches the service, which then asks for a user
	status, body := doRaw(t, http.MethodPost, ts.URL+"/v1/sessions", "")
	gt.Equal(t, status, http.StatusBadRequest)
	msg, _ := body["error"].(string)
	gt.S(t, msg).Contains("user ID is required")

	status, body = doRaw(t, http.MethodPost, ts.URL+"/v1/sessions", `{"user_id": "alice"`)
	gt.Equal(t, status, http.StatusBadRequest)
	gt.V(t, body["code"]).Equal("invalid_request")
	msg, _ = body["error"].(string)
	gt.S(t, msg).Contains("failed to decode request body")
	gt.False(t, strings.Contains(msg, "empty body"))

	status, body = doRaw(t, http.MethodPost, ts.URL+"/v1/users/alice/memories", `{"type": "fact", "content": {`)
	gt.Equal(t, status, http.StatusBadRequest)
	msg, _ = body["error"].(string)
	gt.S(t, msg).Contains("failed to decode request body")
}

func TestExplicitZeroImportanceIsRejected(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/users/alice"

	status, body := do(t, http.MethodPost, base+"/memories", map[string]any{
		"type":       "fact",
		"content":    map[string]any{"pet": "cat"},
		"importance": 0,
	})
	gt.Equal(t, status, http.StatusBadRequest)
	gt.V(t, body["code"]).Equal("invalid_request")

	// diary writes are best effort, so the rejection shows up as not stored
	status, diary := do(t, http.MethodPost, base+"/diary", map[string]any{
		"text":       "Día tranquilo",
		"importance": 0,
	})
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, diary["stored"]).Equal(false)

	// omitting importance still falls back to the default
	status, created := do(t, http.MethodPost, base+"/memories", map[string]any{
		"type":    "fact",
		"content": map[string]any{"pet": "cat"},
	})
	gt.Equal(t, status, http.StatusCreated)
	gt.V(t, created["importance"]).Equal(float64(3))

	status, recalled := do(t, http.MethodGet, base+"/memories", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.A(t, recalled["memories"].([]any)).Length(1)
}

func TestMemoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	base := ts.URL + "/v1/users/alice"

	status, created := do(t, http.MethodPost, base+"/memories", map[string]any{
		"type":             "preference",
		"content":          map[string]any{"theme": "dark"},
		"importance":       4,
		"related_entities": []string{"ui"},
	})
	gt.Equal(t, status, http.StatusCreated)
	id, _ := created["id"].(string)
	gt.NotEqual(t, id, "")

	status, _ = do(t, http.MethodPost, base+"/memories", map[string]any{"type": "fact", "importance": 9})
	gt.Equal(t, status, http.StatusBadRequest)

	status, _ = do(t, http.MethodGet, base+"/memories?type=unknown", nil)
	gt.Equal(t, status, http.StatusBadRequest)

	status, recalled := do(t, http.MethodGet, base+"/memories?type=preference", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.A(t, recalled["memories"].([]any)).Length(1)

	status, found := do(t, http.MethodGet, base+"/memories/search?tag=ui", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.A(t, found["memories"].([]any)).Length(1)

	status, _ = do(t, http.MethodGet, base+"/memories/search", nil)
	gt.Equal(t, status, http.StatusBadRequest)

	status, prefs := do(t, http.MethodGet, base+"/preferences", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, prefs["preferences"]).Equal(map[string]any{"theme": "dark"})

	status, diary := do(t, http.MethodPost, base+"/diary", map[string]any{
		"text":             "Día feliz",
		"entry_type":       "note",
		"emotion_detected": "happy",
	})
	gt.Equal(t, status, http.StatusCreated)
	gt.V(t, diary["stored"]).Equal(true)

	status, emotions := do(t, http.MethodGet, base+"/emotions", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, emotions["emotions"]).Equal([]any{"happy"})

	// another user cannot forget alice's memory
	status, forgot := do(t, http.MethodDelete, ts.URL+"/v1/users/bob/memories/"+id, nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, forgot["deleted"]).Equal(false)

	status, forgot = do(t, http.MethodDelete, base+"/memories/"+id, nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, forgot["deleted"]).Equal(true)

	status, cleared := do(t, http.MethodDelete, base+"/memories", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, cleared["cleared"]).Equal(true)

	status, recalled = do(t, http.MethodGet, base+"/memories", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.A(t, recalled["memories"].([]any)).Length(0)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	status, health := do(t, http.MethodGet, ts.URL+"/healthz", nil)
	gt.Equal(t, status, http.StatusOK)
	gt.V(t, health["status"]).Equal("ok")

	res, err := http.Get(ts.URL + "/metrics")
	gt.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	gt.NoError(t, err)
	gt.Equal(t, res.StatusCode, http.StatusOK)
	gt.S(t, string(body)).Contains("isabella_httpapi_test_active_sessions")
}

func TestTranscriptWithoutArchive(t *testing.T) {
	ts := newTestServer(t)
	status, _ := do(t, http.MethodGet, ts.URL+"/v1/sessions/alice/c1/transcript", nil)
	gt.Equal(t, status, http.StatusNotFound)
}
