package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"VoiceChat/internal/audio"
	"VoiceChat/internal/session"
)

// DefaultTimeout bounds every backend call. Chat turns run STT, LLM and TTS
// on the server, so this is generous.
const DefaultTimeout = 60 * time.Second

// Config configures Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
}

// Client talks to the conversational backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	duration   metric.Float64Histogram
}

// NewClient creates a backend client for cfg.BaseURL.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("voicechat/backend")
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter("voicechat/backend")
	}

	histogram, err := cfg.Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Client{
		baseURL:    base,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		tracer:     cfg.Tracer,
		duration:   histogram,
	}, nil
}

// ResolveURL makes a possibly relative audio URL absolute against the
// backend base URL.
func (c *Client) ResolveURL(ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return c.baseURL.ResolveReference(u).String()
}

// FetchHistory returns the backend's message log for id.
func (c *Client) FetchHistory(ctx context.Context, id session.ID) ([]session.Turn, error) {
	var resp HistoryResponse
	if err := c.do(ctx, "fetch_history", http.MethodGet, historyPath(id), nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.History == nil {
		return []session.Turn{}, nil
	}
	return resp.History, nil
}

// ClearHistory deletes the backend's message log for id.
func (c *Client) ClearHistory(ctx context.Context, id session.ID) error {
	return c.do(ctx, "clear_history", http.MethodDelete, historyPath(id), nil, "", nil)
}

// Chat submits one recorded turn. A response without AudioURL is not an
// error.
func (c *Client) Chat(ctx context.Context, id session.ID, blob audio.Blob) (*ChatResponse, error) {
	body, contentType, err := multipartFile(blob)
	if err != nil {
		return nil, err
	}
	var resp ChatResponse
	if err := c.do(ctx, "chat", http.MethodPost, "agent/chat/"+url.PathEscape(id.String()), body, contentType, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateAudio asks the backend to synthesize text and returns the audio URL.
func (c *Client) GenerateAudio(ctx context.Context, text string) (string, error) {
	payload, err := sonic.Marshal(GenerateAudioRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	var resp generateAudioResponse
	if err := c.do(ctx, "generate_audio", http.MethodPost, "generate-audio", payload, "application/json", &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &APIError{Endpoint: "/generate-audio", Message: resp.Error}
	}
	audioURL := resp.AudioFile
	if audioURL == "" {
		audioURL = resp.AudioURL
	}
	if audioURL == "" {
		return "", &APIError{Endpoint: "/generate-audio", Message: "Unknown error"}
	}
	return c.ResolveURL(audioURL), nil
}

// Echo uploads a recording and returns the re-voiced audio and transcript.
func (c *Client) Echo(ctx context.Context, blob audio.Blob) (*EchoResponse, error) {
	blob.Filename = "echo.wav"
	body, contentType, err := multipartFile(blob)
	if err != nil {
		return nil, err
	}
	var resp echoResponse
	if err := c.do(ctx, "echo", http.MethodPost, "tts/echo", body, contentType, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &APIError{Endpoint: "/tts/echo", Message: resp.Error}
	}
	if resp.AudioURL == "" {
		return nil, &APIError{Endpoint: "/tts/echo", Message: "Unknown error"}
	}
	out := resp.EchoResponse
	out.AudioURL = c.ResolveURL(out.AudioURL)
	return &out, nil
}

func historyPath(id session.ID) string {
	return "agent/history/" + url.PathEscape(id.String())
}

func multipartFile(blob audio.Blob) ([]byte, string, error) {
	if len(blob.Data) == 0 {
		return nil, "", fmt.Errorf("refusing to upload empty audio")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, blob.Filename))
	h.Set("Content-Type", blob.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// do performs one request and decodes a JSON reply into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string, out any) error {
	endpoint := "/" + path
	ctx, span := c.tracer.Start(ctx, "backend."+op, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", endpoint),
	))
	defer span.End()

	start := time.Now()
	requestID := uuid.New().String()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return c.fail(span, &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)})
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.fail(span, &TransportError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)})
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(span, &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)})
	}

	elapsed := time.Since(start)
	c.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("status", resp.StatusCode),
	))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Debug("backend call", "op", op, "status", resp.StatusCode, "elapsed", elapsed, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.fail(span, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: errorMessage(data, resp.Status)})
	}

	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return c.fail(span, &TransportError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)})
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.Warn("backend call failed", "error", err)
	return err
}

// errorMessage extracts {"error"} or {"detail"} from a failure body.
func errorMessage(data []byte, status string) string {
	var eb errorBody
	if err := sonic.Unmarshal(data, &eb); err == nil {
		if eb.Error != "" {
			return eb.Error
		}
		if s, ok := eb.Detail.(string); ok && s != "" {
			return s
		}
	}
	if s := strings.TrimSpace(string(data)); s != "" {
		return s
	}
	return status
}
