package icinga

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"icinga-passive-checks/internal/checks"
	"icinga-passive-checks/internal/models"
)

func newObservedReporter(t *testing.T, url string) (*Reporter, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewReporter(Options{
		URL:      url,
		User:     "icinga",
		Password: "secret",
		Timeout:  2 * time.Second,
	}, zap.New(core))
	return r, logs
}

func pingSubmission() models.Submission {
	return models.Submission{
		Source: "web01",
		Name:   "google",
		Host:   "google.com",
		Type:   models.CheckTypePing,
		Result: models.CheckResult{
			ExitStatus:      "0",
			PluginOutput:    "PING OK - Packet loss = 0% AVG = 4.812ms",
			PerformanceData: "rtavg=4.812ms;3000;5000;0,pl=0%;80;100;0",
		},
	}
}

func TestReporterSubmitOK(t *testing.T) {
	var (
		got      checks.CheckPayload
		user     string
		password string
		accept   string
		method   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		user, password, _ = r.BasicAuth()
		accept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":[{"code":200.0,"status":"Successfully processed check result"}]}`))
	}))
	defer ts.Close()

	r, logs := newObservedReporter(t, ts.URL)
	require.NoError(t, r.Submit(context.Background(), pingSubmission()))

	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "icinga", user)
	assert.Equal(t, "secret", password)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, checks.CheckPayload{
		Type:            "Service",
		Filter:          `host.name=="web01" && service.name=="Passive Ping: google"`,
		ExitStatus:      0,
		PluginOutput:    "PING OK - Packet loss = 0% AVG = 4.812ms",
		PerformanceData: []string{"rtavg=4.812ms;3000;5000;0", "pl=0%;80;100;0"},
		CheckSource:     "web01",
	}, got)

	entries := logs.FilterMessage("Successfully sent passive check result").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "web01", fields["source"])
	assert.Equal(t, "google", fields["check"])
	assert.Equal(t, "google.com", fields["host"])
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestReporterSubmitServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("server error"))
	}))
	defer ts.Close()

	r, logs := newObservedReporter(t, ts.URL)
	err := r.Submit(context.Background(), pingSubmission())

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, http.StatusInternalServerError, submitErr.StatusCode)
	assert.Equal(t, "server error", submitErr.Body)

	entries := logs.FilterMessage("Failed to send passive check result").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "web01", fields["source"])
	assert.Equal(t, "google", fields["check"])
	assert.Equal(t, int64(500), fields["status"])
	assert.Equal(t, "server error", fields["body"])

	payload, ok := fields["payload"].(string)
	require.True(t, ok)
	assert.Contains(t, payload, "\n")
	assert.Contains(t, payload, `  "exit_status": 0,`)
	assert.Contains(t, payload, `"filter": "host.name==\"web01\" && service.name==\"Passive Ping: google\""`)

	var decoded checks.CheckPayload
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "web01", decoded.CheckSource)
}

func TestReporterSubmitUnauthorized(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, password, _ := r.BasicAuth(); password != "right" {
			http.Error(w, `{"error":401.0,"status":"Unauthorized. Please check your user credentials."}`, http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	r, logs := newObservedReporter(t, ts.URL)
	err := r.Submit(context.Background(), pingSubmission())

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, http.StatusUnauthorized, submitErr.StatusCode)
	assert.Contains(t, submitErr.Error(), "HTTP 401")
	assert.Equal(t, 1, logs.FilterMessage("Failed to send passive check result").Len())
}

func TestReporterSubmitNonOKSuccessCodeIsFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	r, _ := newObservedReporter(t, ts.URL)
	var submitErr *SubmitError
	require.ErrorAs(t, r.Submit(context.Background(), pingSubmission()), &submitErr)
	assert.Equal(t, http.StatusAccepted, submitErr.StatusCode)
}

func TestReporterSubmitTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	r, logs := newObservedReporter(t, url)
	err := r.Submit(context.Background(), pingSubmission())

	var submitErr *SubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Zero(t, submitErr.StatusCode)
	assert.Error(t, submitErr.Err)

	entries := logs.FilterMessage("Failed to send passive check result").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(0), fields["status"])
	assert.True(t, strings.Contains(fields["payload"].(string), `"check_source": "web01"`))
}

func TestReporterSubmitTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	core, _ := observer.New(zapcore.InfoLevel)
	r := NewReporter(Options{URL: ts.URL, Timeout: 50 * time.Millisecond}, zap.New(core))

	var submitErr *SubmitError
	require.ErrorAs(t, r.Submit(context.Background(), pingSubmission()), &submitErr)
	assert.Zero(t, submitErr.StatusCode)
}

func TestReporterInsecureSkipVerifyKeepsDefaultTransport(t *testing.T) {
	r := NewReporter(Options{URL: "https://icinga:5665", Timeout: time.Second, InsecureSkipVerify: true}, zap.NewNop())

	transport, ok := r.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.TLSClientConfig.InsecureSkipVerify)
	assert.NotNil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.Positive(t, transport.TLSHandshakeTimeout)

	// the shared default transport is left untouched
	def := http.DefaultTransport.(*http.Transport)
	assert.True(t, def.TLSClientConfig == nil || !def.TLSClientConfig.InsecureSkipVerify)
}

func TestReporterInsecureSkipVerifySelfSigned(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	strict := NewReporter(Options{URL: ts.URL, Timeout: 2 * time.Second}, zap.NewNop())
	assert.Error(t, strict.Submit(context.Background(), pingSubmission()))

	insecure := NewReporter(Options{URL: ts.URL, Timeout: 2 * time.Second, InsecureSkipVerify: true}, zap.NewNop())
	assert.NoError(t, insecure.Submit(context.Background(), pingSubmission()))
}
