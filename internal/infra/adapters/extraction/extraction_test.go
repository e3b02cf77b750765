//go:build !integration

package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"docbatch/internal/config"
	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
)

func sampleInput() adapter.ExtractionInput {
	return adapter.ExtractionInput{Filename: "report.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 body"), EstimatedPages: 2}
}

func TestHTTPExtractor_Extract(t *testing.T) {
	t.Run("should send the document and map the response", func(t *testing.T) {
		// --- Arrange ---
		var gotAuth, gotName, gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			f, hdr, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			b, _ := io.ReadAll(f)
			gotName, gotBody = hdr.Filename, string(b)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"pages": []map[string]any{
					{"page": 1, "text": "first", "confidence": 0.8},
					{"page": 2, "text": "second", "confidence": 1.4},
				},
				"tables": []map[string]any{{"caption": "Totals", "rows": [][]string{{"a", "b"}}}},
				"math":   []string{"x^2"},
			})
		}))
		defer srv.Close()
		ex, err := NewHTTPExtractor(srv.URL, "secret", time.Second)
		if err != nil {
			t.Fatal(err)
		}

		// --- Act ---
		res, err := ex.Extract(context.Background(), sampleInput())

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if gotAuth != "Bearer secret" || gotName != "report.pdf" || gotBody != "%PDF-1.4 body" {
			t.Errorf("unexpected request: auth=%q name=%q body=%q", gotAuth, gotName, gotBody)
		}
		if res.PageCount != 2 || res.Text != "first\n\nsecond" {
			t.Errorf("unexpected result: %+v", res)
		}
		if res.PageConfidence[1] != 1 {
			t.Errorf("expected confidence clamped to 1, got %v", res.PageConfidence[1])
		}
		if len(res.Structure.Tables) != 1 || res.Structure.Tables[0].Caption != "Totals" || len(res.Structure.MathFragments) != 1 {
			t.Errorf("unexpected structure: %+v", res.Structure)
		}
	})

	statusCases := []struct {
		status int
		want   domain.ExtractionErrorKind
	}{
		{http.StatusTooManyRequests, domain.ExtractionQuotaExceeded},
		{http.StatusBadRequest, domain.ExtractionInvalidInput},
		{http.StatusUnsupportedMediaType, domain.ExtractionInvalidInput},
		{http.StatusUnprocessableEntity, domain.ExtractionInvalidInput},
		{http.StatusBadGateway, domain.ExtractionTransient},
		{http.StatusServiceUnavailable, domain.ExtractionTransient},
		{http.StatusUnauthorized, domain.ExtractionUnknown},
	}
	for _, tc := range statusCases {
		t.Run("should classify status "+http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()
			ex, _ := NewHTTPExtractor(srv.URL, "", time.Second)

			_, err := ex.Extract(context.Background(), sampleInput())

			if got := domain.ClassifyExtraction(err); got != tc.want {
				t.Errorf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}

	t.Run("should classify a timeout as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		ex, _ := NewHTTPExtractor(srv.URL, "", 50*time.Millisecond)

		_, err := ex.Extract(context.Background(), sampleInput())

		if got := domain.ClassifyExtraction(err); got != domain.ExtractionTransient {
			t.Errorf("expected transient, got %s (%v)", got, err)
		}
	})

	t.Run("should classify a refused connection as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		ex, _ := NewHTTPExtractor(url, "", time.Second)

		_, err := ex.Extract(context.Background(), sampleInput())

		if got := domain.ClassifyExtraction(err); got != domain.ExtractionTransient {
			t.Errorf("expected transient, got %s (%v)", got, err)
		}
	})

	t.Run("should classify a malformed body as transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "{not json")
		}))
		defer srv.Close()
		ex, _ := NewHTTPExtractor(srv.URL, "", time.Second)

		_, err := ex.Extract(context.Background(), sampleInput())

		if got := domain.ClassifyExtraction(err); got != domain.ExtractionTransient {
			t.Errorf("expected transient, got %s (%v)", got, err)
		}
	})

	t.Run("should require a url", func(t *testing.T) {
		if _, err := NewHTTPExtractor("", "", time.Second); err == nil {
			t.Fatal("expected an error")
		}
	})
}

func TestLocalExtractor_Extract(t *testing.T) {
	logger := zerolog.Nop()
	ex := NewLocalExtractor(&logger)

	t.Run("should reject an empty document as invalid input", func(t *testing.T) {
		_, err := ex.Extract(context.Background(), adapter.ExtractionInput{Filename: "a.pdf"})
		if got := domain.ClassifyExtraction(err); got != domain.ExtractionInvalidInput {
			t.Errorf("expected invalid-input, got %s (%v)", got, err)
		}
	})

	t.Run("should reject bytes that are not a pdf as invalid input", func(t *testing.T) {
		_, err := ex.Extract(context.Background(), adapter.ExtractionInput{
			Filename: "a.pdf", ContentType: "application/pdf", Data: []byte("definitely not a pdf"),
		})
		if got := domain.ClassifyExtraction(err); got != domain.ExtractionInvalidInput {
			t.Errorf("expected invalid-input, got %s (%v)", got, err)
		}
	})
}

func TestPDFValidator_Validate(t *testing.T) {
	v := NewPDFValidator(64)
	cases := []struct {
		name        string
		filename    string
		contentType string
		data        string
	}{
		{"empty file", "a.pdf", "application/pdf", ""},
		{"oversized file", "a.pdf", "application/pdf", "%PDF-" + strings.Repeat("x", 100)},
		{"wrong extension", "a.exe", "application/pdf", "%PDF-1.4"},
		{"wrong content type", "a.pdf", "text/html", "%PDF-1.4"},
		{"missing magic", "a.pdf", "application/pdf", "<html></html>"},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tc.filename, tc.contentType, []byte(tc.data))
			if !errors.Is(err, domain.ErrUploadRejected) {
				t.Errorf("expected ErrUploadRejected, got %v", err)
			}
		})
	}

	t.Run("should accept a pdf header and leave the estimate unknown when unparseable", func(t *testing.T) {
		pages, err := v.Validate(context.Background(), "Scan.PDF", "", []byte("%PDF-1.4 truncated"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if pages != 0 {
			t.Errorf("expected unknown page count, got %d", pages)
		}
	})
}

type blockingExtractor struct {
	inFlight, peak atomic.Int32
	release        chan struct{}
}

func (b *blockingExtractor) Name() string { return "blocking" }

func (b *blockingExtractor) Extract(ctx context.Context, in adapter.ExtractionInput) (*model.ExtractionResult, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	return &model.ExtractionResult{PageCount: 1}, nil
}

func TestLimitedExtractor(t *testing.T) {
	t.Run("should cap concurrent calls", func(t *testing.T) {
		inner := &blockingExtractor{release: make(chan struct{})}
		ex := NewLimitedExtractor(inner, 2)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = ex.Extract(context.Background(), sampleInput())
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(inner.release)
		wg.Wait()

		if got := inner.peak.Load(); got > 2 {
			t.Errorf("expected at most 2 in flight, got %d", got)
		}
	})

	t.Run("should give up waiting when the context ends", func(t *testing.T) {
		inner := &blockingExtractor{release: make(chan struct{})}
		ex := NewLimitedExtractor(inner, 1)
		go func() { _, _ = ex.Extract(context.Background(), sampleInput()) }()
		time.Sleep(20 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := ex.Extract(ctx, sampleInput())

		close(inner.release)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("should return the inner extractor when unlimited", func(t *testing.T) {
		inner := &blockingExtractor{}
		if got := NewLimitedExtractor(inner, 0); got != adapter.Extractor(inner) {
			t.Error("expected the inner extractor")
		}
	})
}

func TestNew(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should build the local extractor by default", func(t *testing.T) {
		ex, err := New(&config.ExtractionConfig{ConcurrentLimit: 2}, &logger)
		if err != nil || ex.Name() != "local" {
			t.Fatalf("expected local extractor, got %v / %v", ex, err)
		}
	})

	t.Run("should reject an unknown provider", func(t *testing.T) {
		if _, err := New(&config.ExtractionConfig{Provider: "carrier-pigeon"}, &logger); err == nil {
			t.Fatal("expected an error")
		}
	})
}
