package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bwhelper/internal/config"
	"bwhelper/internal/models"
	"bwhelper/internal/resolver"
	"bwhelper/internal/writer"
)

const choicePage = `<html><body>
<div class="question active">
  <p>Which animal is a mammal?</p>
  <input type="radio" name="q1" id="a1"><label for="a1">Shark</label>
  <input type="radio" name="q1" id="a2"><label for="a2">Dolphin</label>
</div></body></html>`

type fakeBrowser struct {
	*writer.DocumentSurface
	mu       sync.Mutex
	running  bool
	starts   int
	navURLs  []string
	watching chan struct{}
}

func (f *fakeBrowser) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
	return nil
}

func (f *fakeBrowser) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

func (f *fakeBrowser) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeBrowser) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navURLs = append(f.navURLs, url)
	return nil
}

func (f *fakeBrowser) InstallNavHooks(ctx context.Context) error { return nil }

func (f *fakeBrowser) WaitNavigation(ctx context.Context) error {
	select {
	case f.watching <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeGenerator struct{ reply string }

func (g fakeGenerator) GetAnswer(ctx context.Context, model, prompt string) (string, error) {
	return g.reply, nil
}

const testConfig = `{
	"api_key": "AIzaSyTESTKEY1234",
	"default_model": "flash",
	"delays": {"settle_ms": 0, "fill_ms": 0},
	"marker": {"enabled": false, "color": "#43a047", "size_px": 8}
}`

func newTestServer(t *testing.T) (*Server, *fakeBrowser, http.Handler) {
	return newTestServerWith(t, testConfig, nil)
}

func configGenerator(cfg *config.Config) resolver.Generator {
	return models.NewConfigManager(cfg)
}

// newTestServerWith newGen 为 nil 时使用固定回复 "2" 的模型
func newTestServerWith(t *testing.T, configJSON string, newGen func(*config.Config) resolver.Generator) (*Server, *fakeBrowser, http.Handler) {
	t.Helper()
	t.Setenv("BWHELPER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "bwhelper.json")
	require.NoError(t, os.WriteFile(path, []byte(configJSON), 0o600))
	cfg := config.NewConfig(path)
	require.NoError(t, cfg.Load())

	surface, err := writer.NewDocumentSurfaceFromHTML(choicePage)
	require.NoError(t, err)
	page := &fakeBrowser{DocumentSurface: surface, watching: make(chan struct{}, 1)}

	var gen resolver.Generator = fakeGenerator{reply: "2"}
	if newGen != nil {
		gen = newGen(cfg)
	}
	s := NewServer(cfg, page, gen)
	t.Cleanup(s.Shutdown)
	return s, page, s.Router()
}

// geminiStub 只接受指定 Key 的 generateContent 接口
func geminiStub(t *testing.T, key, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != key {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func keylessConfig(baseURL string) string {
	return fmt.Sprintf(`{
	"default_model": "flash",
	"models": [{"name": "flash", "enabled": true, "backend": "rest", "base_url": %q, "model": "gemini-test", "temperature": 0.1, "max_output_tokens": 50}],
	"delays": {"settle_ms": 0, "fill_ms": 0}
}`, baseURL)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestMessageUnknownAction(t *testing.T) {
	_, _, h := newTestServer(t)

	rec, out := do(t, h, http.MethodPost, "/api/message", map[string]string{"action": "submitQuiz"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "unknown action")
}

func TestMessageMarkAnswers(t *testing.T) {
	_, page, h := newTestServer(t)

	rec, out := do(t, h, http.MethodPost, "/api/message", map[string]string{"action": "markAnswers", "url": "https://example.test/quiz"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Marked ✓", out["message"])

	doc, err := page.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("."+writer.MarkerClass).Length())
	assert.Equal(t, 0, doc.Find("input[checked]").Length())
	assert.Equal(t, []string{"https://example.test/quiz"}, page.navURLs)
	assert.Equal(t, 1, page.starts)
}

func TestMessageProcessQuizStartsWatch(t *testing.T) {
	s, page, h := newTestServer(t)

	rec, out := do(t, h, http.MethodPost, "/api/message", map[string]string{"action": "processQuiz"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Auto helper activated", out["message"])

	select {
	case <-page.watching:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not reach navigation wait")
	}

	_, status := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, float64(1), status["processed"])

	doc, _ := page.Snapshot(context.Background())
	assert.Equal(t, 1, doc.Find("#a2[checked]").Length())

	rec, out = do(t, h, http.MethodPost, "/api/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	s.mu.RLock()
	running := s.status.Running
	s.mu.RUnlock()
	assert.False(t, running)
}

func TestStatusWhenIdleReportsReadiness(t *testing.T) {
	s, _, h := newTestServer(t)
	rec, out := do(t, h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["running"])
	_, want := s.cfg.IsReady()
	assert.Equal(t, want, out["message"])
}

func TestConfigMasksAPIKey(t *testing.T) {
	_, _, h := newTestServer(t)

	_, out := do(t, h, http.MethodGet, "/api/config", nil)
	assert.Equal(t, "AIza*********1234", out["api_key"])
	assert.Equal(t, "flash", out["default_model"])

	rec, out := do(t, h, http.MethodPost, "/api/config", map[string]string{"default_model": "pro"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	_, out = do(t, h, http.MethodGet, "/api/config", nil)
	assert.Equal(t, "pro", out["default_model"])
}

func TestGenerate(t *testing.T) {
	_, _, h := newTestServer(t)

	rec, out := do(t, h, http.MethodPost, "/api/generate", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "question")

	rec, out = do(t, h, http.MethodPost, "/api/generate", map[string]interface{}{
		"question": "Which animal is a mammal?",
		"options":  []string{"Shark", "Dolphin"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2", out["answer"])
	assert.Equal(t, false, out["cached"])

	_, out = do(t, h, http.MethodPost, "/api/generate", map[string]interface{}{
		"question": "Which animal is a mammal?",
		"options":  []string{"Shark", "Dolphin"},
	})
	assert.Equal(t, true, out["cached"])
}

func TestTestModelRequiresFields(t *testing.T) {
	_, _, h := newTestServer(t)

	_, out := do(t, h, http.MethodPost, "/api/models/test", config.ModelConfig{Name: "custom"})
	assert.Equal(t, false, out["success"])
	assert.Contains(t, out["error"], "Base URL")
}

func TestTestModelCallsBackend(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"OK"}]}}]}`))
	}))
	defer upstream.Close()

	_, _, h := newTestServer(t)
	_, out := do(t, h, http.MethodPost, "/api/models/test", config.ModelConfig{
		Name: "flash", Backend: config.BackendREST, BaseURL: upstream.URL, Model: "gemini-test",
	})
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "OK", out["reply"])
}

func TestCORSPreflight(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/message", nil)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "chrome-extension://abcdef", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSavedAPIKeyReachesModel(t *testing.T) {
	upstream := geminiStub(t, "AIzaSyNEWKEY5678", "Paris")
	_, _, h := newTestServerWith(t, keylessConfig(upstream.URL), configGenerator)

	question := map[string]interface{}{"question": "What is the capital of France?"}

	_, out := do(t, h, http.MethodPost, "/api/generate", question)
	assert.Equal(t, resolver.CannotDetermine, out["answer"])
	assert.Equal(t, true, out["fallback"])

	rec, out := do(t, h, http.MethodPost, "/api/config", map[string]string{"api_key": "AIzaSyNEWKEY5678"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, out["success"])

	_, out = do(t, h, http.MethodPost, "/api/generate", question)
	assert.Equal(t, "Paris", out["answer"])
	assert.Equal(t, false, out["fallback"])
	assert.Equal(t, false, out["cached"])

	_, out = do(t, h, http.MethodPost, "/api/generate", question)
	assert.Equal(t, "Paris", out["answer"])
	assert.Equal(t, true, out["cached"])
}

func TestWatchRejectedWithoutAPIKey(t *testing.T) {
	upstream := geminiStub(t, "unused", "2")
	_, page, h := newTestServerWith(t, keylessConfig(upstream.URL), configGenerator)

	for _, action := range []string{"processQuiz", "processAndMark"} {
		rec, out := do(t, h, http.MethodPost, "/api/message", map[string]string{"action": action})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, false, out["success"], action)
		assert.Contains(t, out["error"], "API Key", action)
	}

	_, status := do(t, h, http.MethodGet, "/api/status", nil)
	assert.Equal(t, false, status["running"])
	assert.Zero(t, page.starts)
}
