package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/voicepipe/internal/artifact"
	"github.com/kalambet/voicepipe/internal/pipeline"
	"github.com/kalambet/voicepipe/internal/remote"
	"github.com/kalambet/voicepipe/internal/storage"
)

type stubRecognizer struct {
	result remote.RecognizeResult
	err    error
}

func (s *stubRecognizer) Recognize(ctx context.Context) (remote.RecognizeResult, error) {
	return s.result, s.err
}

type stubGenerator struct {
	result remote.GenerateResult
	err    error
}

func (s *stubGenerator) Generate(ctx context.Context) (remote.GenerateResult, error) {
	return s.result, s.err
}

type stubSynthesizer struct {
	audio []byte
	err   error
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return s.audio, s.err
}

func strptr(s string) *string { return &s }

func newTestDeps(t *testing.T, rec *stubRecognizer, gen *stubGenerator, syn *stubSynthesizer) Deps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	art, err := artifact.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact.NewStore: %v", err)
	}

	return Deps{
		Orchestrator:   pipeline.New(rec, gen, syn, art, store),
		DefaultUserID:  10,
		AllowedOrigins: []string{"http://localhost:8000"},
	}
}

func workingStubs() (*stubRecognizer, *stubGenerator, *stubSynthesizer) {
	rec := &stubRecognizer{result: remote.RecognizeResult{
		UserID:   10,
		Text:     strptr("hello"),
		AudioRef: strptr("a.wav"),
	}}
	gen := &stubGenerator{result: remote.GenerateResult{UserID: 10, Text: strptr("hi there")}}
	syn := &stubSynthesizer{audio: []byte("RIFFdata")}
	return rec, gen, syn
}

func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v (body: %s)", err, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	w := doRequest(t, h, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]string
	decodeBody(t, w, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

// The root endpoint lazily creates the default user and returns its history.
func TestRootCreatesDefaultUser(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	w := doRequest(t, h, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body struct {
		Message string              `json:"message"`
		User    storage.UserHistory `json:"user"`
	}
	decodeBody(t, w, &body)
	if body.User.UserID != 10 {
		t.Errorf("user id = %d, want 10", body.User.UserID)
	}
	if body.User.InputAudioRefs == nil {
		t.Error("sequences must encode as arrays, not null")
	}
}

func TestGetUserNotFound(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	w := doRequest(t, h, http.MethodGet, "/users/999")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRunFullPipelineEndpoint(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	w := doRequest(t, h, http.MethodPost, "/run-full-pipeline")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var result pipeline.Result
	decodeBody(t, w, &result)
	if !result.Success || !result.TTSSuccess {
		t.Fatalf("success=%v tts=%v, errors=%v", result.Success, result.TTSSuccess, result.Errors)
	}
	if result.FinalData == nil || result.FinalData.GeneratedText != "hi there" {
		t.Errorf("final data = %+v", result.FinalData)
	}

	// The run must now be visible through the typed user endpoint.
	w = doRequest(t, h, http.MethodGet, "/users/10")
	if w.Code != http.StatusOK {
		t.Fatalf("/users/10 status = %d, want 200", w.Code)
	}
	var hist storage.UserHistory
	decodeBody(t, w, &hist)
	if hist.Len() != 1 {
		t.Errorf("history length = %d, want 1", hist.Len())
	}
}

// A recognize failure on the piecewise endpoint reports the error in the
// body; the request itself succeeds and history stays unchanged.
func TestRecognizeEndpointFailureIsData(t *testing.T) {
	_, gen, syn := workingStubs()
	rec := &stubRecognizer{err: &remote.Error{Kind: remote.KindUnreachable, Detail: "connection refused"}}
	deps := newTestDeps(t, rec, gen, syn)
	h := NewHandler(deps)

	w := doRequest(t, h, http.MethodGet, "/atot")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] == "" {
		t.Error("expected error in response body")
	}

	hist, err := deps.Orchestrator.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if hist.Len() != 0 {
		t.Errorf("history length = %d, want 0", hist.Len())
	}
}

func TestPiecewiseEndpointsFlow(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	if w := doRequest(t, h, http.MethodGet, "/atot"); w.Code != http.StatusOK {
		t.Fatalf("/atot status = %d", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/ttot"); w.Code != http.StatusOK {
		t.Fatalf("/ttot status = %d", w.Code)
	}

	w := doRequest(t, h, http.MethodPost, "/process-audio")
	if w.Code != http.StatusOK {
		t.Fatalf("/process-audio status = %d (body: %s)", w.Code, w.Body.String())
	}

	var result pipeline.ProcessResult
	decodeBody(t, w, &result)
	if !result.TTSSuccess {
		t.Errorf("tts_success = false: %s", result.TTSError)
	}
	if len(result.OutputAudioRefs) != 1 {
		t.Errorf("output_wav_list = %v, want one entry", result.OutputAudioRefs)
	}
}

// process-audio without a prior generate call must refuse with an error body.
func TestProcessAudioWithoutGenerate(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	w := doRequest(t, h, http.MethodPost, "/process-audio")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] == "" {
		t.Error("expected error in response body")
	}
}

func TestUserColumnEndpoints(t *testing.T) {
	rec, gen, syn := workingStubs()
	deps := newTestDeps(t, rec, gen, syn)
	h := NewHandler(deps)

	doRequest(t, h, http.MethodPost, "/run-full-pipeline")

	w := doRequest(t, h, http.MethodGet, "/users/10/atot")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		UserID   int64    `json:"user_id"`
		AtotText []string `json:"atot_text"`
	}
	decodeBody(t, w, &body)
	if len(body.AtotText) != 1 || body.AtotText[0] != "hello" {
		t.Errorf("atot_text = %v, want [hello]", body.AtotText)
	}
}

func TestUserIDQueryOverride(t *testing.T) {
	rec, gen, syn := workingStubs()
	deps := newTestDeps(t, rec, gen, syn)
	h := NewHandler(deps)

	w := doRequest(t, h, http.MethodPost, "/run-full-pipeline?user_id=22")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	hist, err := deps.Orchestrator.History(22)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if hist.Len() != 1 {
		t.Errorf("history length for user 22 = %d, want 1", hist.Len())
	}
}

func TestCORSHeaders(t *testing.T) {
	rec, gen, syn := workingStubs()
	h := NewHandler(newTestDeps(t, rec, gen, syn))

	req := httptest.NewRequest(http.MethodOptions, "/run-full-pipeline", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8000" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
