package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/MrWong99/wavescope/internal/stats"
)

// stubSource is a canned SessionSource for handler tests.
type stubSource struct {
	session  SessionSnapshot
	envelope EnvelopeSnapshot
	err      error
}

func (s *stubSource) SessionSnapshot(ctx context.Context) (SessionSnapshot, error) {
	if s.err != nil {
		return SessionSnapshot{}, s.err
	}
	return s.session, nil
}

func (s *stubSource) EnvelopeSnapshot(ctx context.Context) (EnvelopeSnapshot, error) {
	if s.err != nil {
		return EnvelopeSnapshot{}, s.err
	}
	return s.envelope, nil
}

func testSnapshot() SessionSnapshot {
	return SessionSnapshot{
		State:            "recording",
		Mode:             "realtime-callback",
		SampleRate:       48000,
		DecimationFactor: 10,
		MicGain:          1.0,
		BlockCount:       513,
		View:             ViewJSON{Start: 0, Visible: 513, Zoom: 1, AutoScroll: true},
	}
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestSessionEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{session: testSnapshot()})

	status, body := getBody(t, ts.URL+"/v1/session")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var snap SessionSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", body, err)
	}
	if snap.State != "recording" {
		t.Fatalf("State = %q, want recording", snap.State)
	}
	if snap.SampleRate != 48000 {
		t.Fatalf("SampleRate = %d, want 48000", snap.SampleRate)
	}
	if !snap.View.AutoScroll {
		t.Fatal("View.AutoScroll = false, want true")
	}
}

func TestEnvelopeEndpoint(t *testing.T) {
	src := &stubSource{
		envelope: EnvelopeSnapshot{
			BlockCount: 3,
			Mins:       []float32{-0.5, -0.25, -0.75},
			Maxs:       []float32{0.5, 0.25, 0.75},
			View:       ViewJSON{Start: 0, Visible: 3, Zoom: 1},
		},
	}
	ts, _ := newTestServer(t, src)

	status, body := getBody(t, ts.URL+"/v1/envelope")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var snap EnvelopeSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", body, err)
	}
	if snap.BlockCount != 3 {
		t.Fatalf("BlockCount = %d, want 3", snap.BlockCount)
	}
	if len(snap.Mins) != 3 || len(snap.Maxs) != 3 {
		t.Fatalf("len(Mins), len(Maxs) = %d, %d, want 3, 3", len(snap.Mins), len(snap.Maxs))
	}
	if snap.Mins[2] != -0.75 {
		t.Fatalf("Mins[2] = %v, want -0.75", snap.Mins[2])
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, srv := newTestServer(t, &stubSource{session: testSnapshot()})
	srv.stats.AddBatch(2048)
	srv.stats.AddBatch(2048)

	status, body := getBody(t, ts.URL+"/v1/stats")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	var snap stats.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("Unmarshal(%q) error = %v", body, err)
	}
	if snap.Batches != 2 {
		t.Fatalf("Batches = %d, want 2", snap.Batches)
	}
	if snap.Samples != 4096 {
		t.Fatalf("Samples = %d, want 4096", snap.Samples)
	}
}

func TestSessionEndpoint_SourceError(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{err: errors.New("coordinator stopped")})

	status, body := getBody(t, ts.URL+"/v1/session")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", status, http.StatusServiceUnavailable)
	}
	if !strings.Contains(body, "coordinator stopped") {
		t.Fatalf("body = %q, want the source error", body)
	}
}

func TestHealthRoutesRegistered(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{session: testSnapshot()})

	for _, path := range []string{"/healthz", "/readyz"} {
		status, _ := getBody(t, ts.URL+path)
		if status != http.StatusOK {
			t.Fatalf("GET %s status = %d, want %d", path, status, http.StatusOK)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{session: testSnapshot()})

	status, body := getBody(t, ts.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Fatal("metrics exposition missing go_goroutines")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, &stubSource{session: testSnapshot()})

	resp, err := http.Post(ts.URL+"/v1/session", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
