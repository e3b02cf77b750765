package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"docbatch/internal/domain"
	"docbatch/internal/domain/model"
	"docbatch/internal/domain/ports/adapter"
)

var _ adapter.Extractor = (*HTTPExtractor)(nil)

// HTTPExtractor posts documents to a remote OCR/extraction service.
type HTTPExtractor struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPExtractor(url, apiKey string, timeout time.Duration) (*HTTPExtractor, error) {
	if url == "" {
		return nil, errors.New("extraction url empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPExtractor{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (e *HTTPExtractor) Name() string { return "http" }

type extractionResponse struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count"`
	Pages     []struct {
		Page       int     `json:"page"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	} `json:"pages"`
	Tables []model.Table `json:"tables"`
	Math   []string      `json:"math"`
}

func (e *HTTPExtractor) Extract(ctx context.Context, in adapter.ExtractionInput) (*model.ExtractionResult, error) {
	body, contentType, err := multipartBody(in)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionInvalidInput, "build request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, body)
	if err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionUnknown, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewExtractionError(kindForStatus(resp.StatusCode),
			fmt.Sprintf("service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var out extractionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewExtractionError(domain.ExtractionTransient, "decode response", err)
	}
	return out.toResult(time.Since(start)), nil
}

func (r *extractionResponse) toResult(elapsed time.Duration) *model.ExtractionResult {
	res := &model.ExtractionResult{
		Text:       r.Text,
		PageCount:  r.PageCount,
		Structure:  model.Structure{Tables: r.Tables, MathFragments: r.Math},
		DurationMs: elapsed.Milliseconds(),
	}
	if len(r.Pages) > 0 {
		texts := make([]string, 0, len(r.Pages))
		res.PageConfidence = make([]float64, 0, len(r.Pages))
		for _, p := range r.Pages {
			texts = append(texts, strings.TrimSpace(p.Text))
			res.PageConfidence = append(res.PageConfidence, model.ClampConfidence(p.Confidence))
		}
		if res.Text == "" {
			res.Text = strings.Join(texts, "\n\n")
		}
		if res.PageCount < len(r.Pages) {
			res.PageCount = len(r.Pages)
		}
	}
	return res
}

func multipartBody(in adapter.ExtractionInput) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, in.Filename))
	ct := in.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(in.Data); err != nil {
		return nil, "", err
	}
	if in.EstimatedPages > 0 {
		if err := w.WriteField("estimated_pages", fmt.Sprint(in.EstimatedPages)); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func kindForStatus(code int) domain.ExtractionErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.ExtractionQuotaExceeded
	case code == http.StatusBadRequest, code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
		return domain.ExtractionInvalidInput
	case code >= 500:
		return domain.ExtractionTransient
	}
	return domain.ExtractionUnknown
}

// Timeouts and connection failures are worth a retry; nothing else is.
func classifyTransportError(err error) error {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne) && ne.Timeout():
		return domain.NewExtractionError(domain.ExtractionTransient, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return domain.NewExtractionError(domain.ExtractionTransient, "connection failed", err)
	}
	return domain.NewExtractionError(domain.ExtractionUnknown, "request failed", err)
}
