package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var re *Error
	if !errors.As(err, &re) {
		t.Fatalf("error is %T, want *remote.Error: %v", err, err)
	}
	return re
}

func TestRecognize_FullResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/run-model" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"user_id":7,"result":{"details":{"received_text":"hello","audio_url":"a.wav"}}}`)
	}))
	defer srv.Close()

	c := NewRecognizer(srv.URL, testTimeout)
	result, err := c.Recognize(context.Background())
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	if result.UserID != 7 {
		t.Errorf("UserID = %d, want 7", result.UserID)
	}
	if result.Text == nil || *result.Text != "hello" {
		t.Errorf("Text = %v, want hello", result.Text)
	}
	if result.AudioRef == nil || *result.AudioRef != "a.wav" {
		t.Errorf("AudioRef = %v, want a.wav", result.AudioRef)
	}
}

// A 2xx response missing the nested result path is a success with nil
// fields, not a failure.
func TestRecognize_MissingFieldsIsLenientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user_id":7}`)
	}))
	defer srv.Close()

	c := NewRecognizer(srv.URL, testTimeout)
	result, err := c.Recognize(context.Background())
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Text != nil || result.AudioRef != nil {
		t.Errorf("fields = %v/%v, want nil/nil", result.Text, result.AudioRef)
	}
}

func TestRecognize_NonJSONBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	c := NewRecognizer(srv.URL, testTimeout)
	_, err := c.Recognize(context.Background())
	if kind := asError(t, err).Kind; kind != KindMalformed {
		t.Errorf("Kind = %q, want %q", kind, KindMalformed)
	}
}

func TestRecognize_ServerDownIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewRecognizer(srv.URL, testTimeout)
	_, err := c.Recognize(context.Background())
	if kind := asError(t, err).Kind; kind != KindUnreachable {
		t.Errorf("Kind = %q, want %q", kind, KindUnreachable)
	}
}

func TestRecognize_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRecognizer(srv.URL, testTimeout)
	_, err := c.Recognize(context.Background())
	re := asError(t, err)
	if re.Kind != KindRemoteError || re.Status != http.StatusInternalServerError {
		t.Errorf("got %q/%d, want %q/500", re.Kind, re.Status, KindRemoteError)
	}
}

func TestGenerate_Response(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, `{"user_id":7,"response":"hi there"}`)
	}))
	defer srv.Close()

	c := NewGenerator(srv.URL, testTimeout)
	result, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text == nil || *result.Text != "hi there" {
		t.Errorf("Text = %v, want hi there", result.Text)
	}
}

func TestGenerate_MissingResponseFieldIsLenientSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"user_id":7}`)
	}))
	defer srv.Close()

	c := NewGenerator(srv.URL, testTimeout)
	result, err := c.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Text != nil {
		t.Errorf("Text = %q, want nil", *result.Text)
	}
}

func TestSynthesize_Audio(t *testing.T) {
	audio := make([]byte, 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate-speech/" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req synthesizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestText == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Write(audio)
	}))
	defer srv.Close()

	c := NewSynthesizer(srv.URL, testTimeout)
	got, err := c.Synthesize(context.Background(), "hi there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(got) != len(audio) {
		t.Errorf("got %d bytes, want %d", len(got), len(audio))
	}
}

func TestSynthesize_EmptyBodyIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSynthesizer(srv.URL, testTimeout)
	_, err := c.Synthesize(context.Background(), "hi there")
	if kind := asError(t, err).Kind; kind != KindEmptyPayload {
		t.Errorf("Kind = %q, want %q", kind, KindEmptyPayload)
	}
}

func TestProbeAll(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	down.Close()

	statuses := ProbeAll(context.Background(), up.URL, down.URL, up.URL)
	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3", len(statuses))
	}
	if !statuses[0].Reachable || statuses[1].Reachable || !statuses[2].Reachable {
		t.Errorf("reachability = %v/%v/%v, want true/false/true",
			statuses[0].Reachable, statuses[1].Reachable, statuses[2].Reachable)
	}
	if statuses[0].Name != "atot" || statuses[1].Name != "ttot" || statuses[2].Name != "tts" {
		t.Errorf("names = %s/%s/%s", statuses[0].Name, statuses[1].Name, statuses[2].Name)
	}
}
