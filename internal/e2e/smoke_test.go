//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

var baseURL string

func TestMain(m *testing.M) {
	baseURL = os.Getenv("BONDS_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3210"
	}

	// Wait for server readiness (up to 30s)
	ready := false
	for i := 0; i < 30; i++ {
		resp, err := http.Get(baseURL + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	if !ready {
		fmt.Fprintf(os.Stderr, "server at %s not ready after 30s\n", baseURL)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// relationRecord mirrors the fields of a relation the smoke tests read.
type relationRecord struct {
	Owner             string `json:"owner"`
	Other             string `json:"other"`
	Value             int    `json:"value"`
	Tier              string `json:"tier"`
	Context           string `json:"context"`
	SharedExperiences int    `json:"shared_experiences"`
}

type clockInfo struct {
	Tick      uint64 `json:"tick"`
	Paused    bool   `json:"paused"`
	Recording bool   `json:"recording"`
}

// call sends a JSON request and returns the status and raw body.
func call(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	return resp.StatusCode, raw
}

// waitForRelation polls until owner holds a relation toward other.
func waitForRelation(t *testing.T, owner, other string, timeout time.Duration) relationRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, raw := call(t, http.MethodGet, "/api/agents/"+owner+"/relations/"+other, nil)
		if status == http.StatusOK {
			var rec relationRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				t.Fatalf("unmarshal relation: %v (body: %s)", err, string(raw))
			}
			return rec
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("relation %s -> %s did not appear within %s", owner, other, timeout)
	return relationRecord{}
}

func TestClockRunning(t *testing.T) {
	status, raw := call(t, http.MethodGet, "/api/clock", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}
	var info clockInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		t.Fatalf("unmarshal clock: %v", err)
	}
	if info.Paused {
		t.Skip("clock is paused on the server under test")
	}
	time.Sleep(500 * time.Millisecond)

	_, raw = call(t, http.MethodGet, "/api/clock", nil)
	var later clockInfo
	json.Unmarshal(raw, &later)
	if later.Tick <= info.Tick {
		t.Errorf("clock did not advance: %d -> %d", info.Tick, later.Tick)
	}
}

func TestCreateAndModifyRelation(t *testing.T) {
	status, raw := call(t, http.MethodPost, "/api/relations", map[string]string{
		"a":       "0:0",
		"b":       "1:0",
		"context": "trade",
	})
	if status != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}

	ab := waitForRelation(t, "0:0", "1:0", 15*time.Second)
	ba := waitForRelation(t, "1:0", "0:0", 15*time.Second)
	if ab.Value < -100 || ab.Value > 100 {
		t.Errorf("value out of range: %d", ab.Value)
	}
	t.Logf("created: %+v / %+v", ab, ba)

	status, raw = call(t, http.MethodPost, "/api/relations/modify", map[string]interface{}{
		"source": "0:0",
		"target": "1:0",
		"delta":  5,
		"shared": true,
	})
	if status != http.StatusAccepted {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		rec := waitForRelation(t, "0:0", "1:0", time.Second)
		if rec.SharedExperiences > ab.SharedExperiences {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Error("modification was not applied")
}

func TestRejectsSelfRelation(t *testing.T) {
	status, raw := call(t, http.MethodPost, "/api/relations/modify", map[string]interface{}{
		"source": "3:0",
		"target": "3:0",
		"delta":  5,
	})
	if status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", status, string(raw))
	}
}

func TestEngineStatus(t *testing.T) {
	status, raw := call(t, http.MethodGet, "/api/engine", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, string(raw))
	}
	if !strings.Contains(string(raw), `"records"`) {
		t.Errorf("expected a records count, got: %.200s", string(raw))
	}
	t.Logf("engine: %.300s", string(raw))
}

func TestMetricsExposed(t *testing.T) {
	status, raw := call(t, http.MethodGet, "/metrics", nil)
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if !strings.Contains(string(raw), "nuka_bonds_scan_pair_checks_total") {
		t.Errorf("expected relation metrics in /metrics output")
	}
}
