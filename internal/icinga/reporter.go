// Package icinga submits passive check results to the Icinga 2 REST API.
package icinga

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"icinga-passive-checks/internal/checks"
	"icinga-passive-checks/internal/models"
)

// maxResponseBody bounds how much of an error response is kept for the log
const maxResponseBody = 1 << 20

// Options configures a Reporter
type Options struct {
	URL                string
	User               string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Reporter posts one payload per Submit call. It never retries.
type Reporter struct {
	url      string
	user     string
	password string
	client   *http.Client
	logger   *zap.Logger
}

// SubmitError is returned when the API did not answer 200. StatusCode is 0
// when no response was received.
type SubmitError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("submit passive check: %v", e.Err)
	}
	return fmt.Sprintf("submit passive check: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// NewReporter creates a Reporter for the process-check-result endpoint
func NewReporter(opts Options, logger *zap.Logger) *Reporter {
	client := &http.Client{Timeout: opts.Timeout}
	if opts.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		client.Transport = transport
	}

	return &Reporter{
		url:      opts.URL,
		user:     opts.User,
		password: opts.Password,
		client:   client,
		logger:   logger,
	}
}

// Submit builds the payload for sub and posts it. Success and failure are
// both logged; failures are also returned as *SubmitError.
func (r *Reporter) Submit(ctx context.Context, sub models.Submission) error {
	payload := checks.BuildPayload(sub.Source, sub.Type, sub.Name, sub.Result)
	log := r.logger.With(
		zap.String("source", sub.Source),
		zap.String("check", sub.Name),
		zap.String("host", sub.Host),
	)

	body, err := encodeJSON(payload, "")
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(r.user, r.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		submitErr := &SubmitError{Err: err}
		r.logFailure(log, payload, submitErr)
		return submitErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if readErr != nil {
			log.Debug("Failed to read response body", zap.Error(readErr))
		}
		submitErr := &SubmitError{StatusCode: resp.StatusCode, Body: string(respBody)}
		r.logFailure(log, payload, submitErr)
		return submitErr
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	log.Info("Successfully sent passive check result")
	return nil
}

func (r *Reporter) logFailure(log *zap.Logger, payload checks.CheckPayload, submitErr *SubmitError) {
	pretty, err := encodeJSON(payload, "  ")
	if err != nil {
		pretty = []byte(fmt.Sprintf("%+v", payload))
	}

	fields := []zap.Field{
		zap.Int("status", submitErr.StatusCode),
		zap.String("body", submitErr.Body),
		zap.String("payload", string(bytes.TrimSpace(pretty))),
	}
	if submitErr.Err != nil {
		fields = append(fields, zap.Error(submitErr.Err))
	}
	log.Error("Failed to send passive check result", fields...)
}

// encodeJSON keeps the filter expression readable by not escaping '&'
func encodeJSON(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
