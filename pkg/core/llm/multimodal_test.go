package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	coreerrors "github.com/easyops/contextengine-go/pkg/core/errors"
	"github.com/easyops/contextengine-go/pkg/core/llm"
)

func newMultimodal(t *testing.T, handler http.HandlerFunc) *llm.MultimodalEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e, err := llm.NewMultimodalEmbedder(
		llm.WithAPIKey("k"),
		llm.WithBaseURL(srv.URL),
		llm.WithMaxRetries(0),
	)
	if err != nil {
		t.Fatalf("NewMultimodalEmbedder() error = %v", err)
	}
	return e
}

func TestNewMultimodalEmbedder_NoCredentials(t *testing.T) {
	if _, err := llm.NewMultimodalEmbedder(); !errors.Is(err, coreerrors.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestMultimodalEmbedder_WrapsTypedInputs(t *testing.T) {
	e := newMultimodal(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings/multimodal" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		var body struct {
			Input []map[string]string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(body.Input) != 2 || body.Input[0]["type"] != "text" || body.Input[1]["text"] != "second" {
			t.Errorf("unexpected input %v", body.Input)
		}
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	})

	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("vectors not re-sorted by index: %v", vectors)
	}
}

func TestMultimodalEmbedder_SingleObject(t *testing.T) {
	e := newMultimodal(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"embedding":[0.5,0.25]}}`))
	})

	vectors, err := e.Embed(context.Background(), []string{"only"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 1 || vectors[0][1] != 0.25 {
		t.Errorf("unexpected vectors %v", vectors)
	}
}

func TestMultimodalEmbedder_FusedBatchFallsBackPerText(t *testing.T) {
	calls := 0
	e := newMultimodal(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":{"embedding":[1]}}`))
	})

	vectors, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("len(vectors) = %d, want 3", len(vectors))
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestMultimodalEmbedder_RejectsUnexpectedShapes(t *testing.T) {
	for _, body := range []string{
		`{"data":"not-a-list"}`,
		`{"data":42}`,
		`{"data":null}`,
		`{}`,
		`{"data":[{"index":0,"embedding":[1]}]}`,
	} {
		t.Run(body, func(t *testing.T) {
			e := newMultimodal(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := e.Embed(context.Background(), []string{"a", "b"})
			if !errors.Is(err, coreerrors.ErrEmbeddingFailed) {
				t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
			}
		})
	}
}

func TestMultimodalEmbedder_HTTPError(t *testing.T) {
	e := newMultimodal(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	_, err := e.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, coreerrors.ErrEmbeddingFailed) || !errors.Is(err, coreerrors.ErrInvalidAPIKey) {
		t.Fatalf("expected ErrEmbeddingFailed wrapping ErrInvalidAPIKey, got %v", err)
	}
}
