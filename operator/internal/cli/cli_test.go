package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/portwatch/portwatch/operator/internal/apiclient"
	"github.com/portwatch/portwatch/pkg/reservationrpc"
	"github.com/portwatch/portwatch/pkg/types"
)

// fakeReservations is a minimal in-memory reservation service.
type fakeReservations struct {
	mu    sync.Mutex
	next  int
	slots map[types.SlotKey]types.Reservation
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{slots: make(map[types.SlotKey]types.Reservation)}
}

func (f *fakeReservations) Acquire(ctx context.Context, req *reservationrpc.AcquireRequest) (*reservationrpc.AcquireResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	holder := req.MonitoredBy
	if md, ok := metadata.FromIncomingContext(ctx); ok && holder == "" {
		if v := md.Get("x-operator"); len(v) > 0 {
			holder = v[0]
		}
	}
	key := types.SlotKey{PortfolioID: req.PortfolioID, IssueHour: req.IssueHour}
	now := time.Now().UTC()
	if cur, ok := f.slots[key]; ok {
		if cur.MonitoredBy != holder {
			return nil, reservationrpc.ToStatus(&types.ConflictError{
				PortfolioID: cur.PortfolioID, IssueHour: cur.IssueHour, HeldBy: cur.MonitoredBy, ExpiresAt: cur.ExpiresAt,
			})
		}
		cur.ExpiresAt = now.Add(5 * time.Minute)
		f.slots[key] = cur
		return &reservationrpc.AcquireResponse{Reservation: cur}, nil
	}
	f.next++
	res := types.Reservation{
		ID:          fmt.Sprintf("r%d", f.next),
		PortfolioID: req.PortfolioID,
		IssueHour:   req.IssueHour,
		MonitoredBy: holder,
		AcquiredAt:  now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	f.slots[key] = res
	return &reservationrpc.AcquireResponse{Reservation: res}, nil
}

func (f *fakeReservations) Release(_ context.Context, req *reservationrpc.ReleaseRequest) (*reservationrpc.ReleaseResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, r := range f.slots {
		if r.ID == req.ID {
			delete(f.slots, k)
		}
	}
	return &reservationrpc.ReleaseResponse{}, nil
}

func (f *fakeReservations) CheckActive(_ context.Context, req *reservationrpc.CheckActiveRequest) (*reservationrpc.CheckActiveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.slots[types.SlotKey{PortfolioID: req.PortfolioID, IssueHour: req.IssueHour}]
	if !ok {
		return &reservationrpc.CheckActiveResponse{}, nil
	}
	return &reservationrpc.CheckActiveResponse{Active: true, Reservation: &r}, nil
}

func (f *fakeReservations) ListActive(context.Context, *reservationrpc.ListActiveRequest) (*reservationrpc.ListActiveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.Reservation, 0, len(f.slots))
	for _, r := range f.slots {
		out = append(out, r)
	}
	return &reservationrpc.ListActiveResponse{Reservations: out}, nil
}

func (f *fakeReservations) hold(pid string, hour int, by string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.slots[types.SlotKey{PortfolioID: pid, IssueHour: hour}] = types.Reservation{
		ID: fmt.Sprintf("r%d", f.next), PortfolioID: pid, IssueHour: hour, MonitoredBy: by,
		AcquiredAt: time.Now(), ExpiresAt: time.Now().Add(5 * time.Minute),
	}
}

func startGRPC(t *testing.T, srv reservationrpc.ReservationServer) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	reservationrpc.RegisterReservationServer(gs, srv)
	go gs.Serve(lis) //nolint:errcheck
	t.Cleanup(gs.Stop)
	return lis.Addr().String()
}

func startREST(t *testing.T, h http.Handler) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

// run executes portwatchctl with args against the given endpoints.
func run(t *testing.T, restURL, grpcAddr string, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)

	base := []string{"--no-color", "--as", "alice"}
	if restURL != "" {
		base = append(base, "--server", restURL)
	}
	if grpcAddr != "" {
		base = append(base, "--grpc", grpcAddr)
	}
	root.SetArgs(append(base, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestBoard(t *testing.T) {
	two := 2
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []apiclient.PortfolioStatus{
			{PortfolioID: "acme", Band: apiclient.BandLogging, LoggedBy: "bob", AllSitesChecked: true},
			{PortfolioID: "globex", Band: apiclient.Band2h, HoursSinceActivity: &two, CheckedDetails: "site 4", Locked: true, LockedBy: "carol"},
		})
	}))

	out, err := run(t, url, "", "board")
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	for _, want := range []string{"acme", "logging", "bob", "globex", "2h", "sites unchecked: site 4", "locked by carol", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatus_NotFound(t *testing.T) {
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": `portfolio "nope": not found`})
	}))

	_, err := run(t, url, "", "status", "nope")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}

func TestChecked_SendsReason(t *testing.T) {
	var body map[string]interface{}
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/portfolios/acme/checked" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, types.Portfolio{ID: "acme", CheckedDetails: "site 4 offline"})
	}))

	out, err := run(t, url, "", "checked", "acme", "--value=false", "--reason", "site 4 offline")
	if err != nil {
		t.Fatalf("checked: %v", err)
	}
	if body["all_sites_checked"] != false || body["reason"] != "site 4 offline" {
		t.Errorf("request body: %v", body)
	}
	if !strings.Contains(out, "sites unchecked (site 4 offline)") {
		t.Errorf("output: %s", out)
	}
}

func TestReserveActiveRelease(t *testing.T) {
	fake := newFakeReservations()
	addr := startGRPC(t, fake)

	out, err := run(t, "", addr, "reserve", "acme", "9")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if !strings.Contains(out, "Reserved acme hour 09 for alice") {
		t.Errorf("reserve output: %s", out)
	}

	fake.hold("globex", 9, "bob")
	out, err = run(t, "", addr, "active", "--mine")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if !strings.Contains(out, "acme") || strings.Contains(out, "globex") {
		t.Errorf("active --mine output: %s", out)
	}

	out, err = run(t, "", addr, "release", "acme", "9")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !strings.Contains(out, "Released r1") {
		t.Errorf("release output: %s", out)
	}

	out, err = run(t, "", addr, "check", "acme", "9")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "acme hour 09 is free") {
		t.Errorf("check output: %s", out)
	}
}

func TestReserve_Conflict(t *testing.T) {
	fake := newFakeReservations()
	fake.hold("acme", 9, "bob")
	addr := startGRPC(t, fake)

	_, err := run(t, "", addr, "reserve", "acme", "9")
	if err == nil || !strings.Contains(err.Error(), "slot is held by bob") {
		t.Errorf("want held-by error, got %v", err)
	}
}

func TestRelease_OtherHolder(t *testing.T) {
	fake := newFakeReservations()
	fake.hold("acme", 9, "bob")
	addr := startGRPC(t, fake)

	_, err := run(t, "", addr, "release", "acme", "9")
	if err == nil || !strings.Contains(err.Error(), "held by bob") {
		t.Errorf("want refusal, got %v", err)
	}
	resp, _ := fake.CheckActive(context.Background(), &reservationrpc.CheckActiveRequest{PortfolioID: "acme", IssueHour: 9})
	if resp == nil || !resp.Active {
		t.Error("bob's reservation should survive")
	}
}

func TestReserve_BadHour(t *testing.T) {
	_, err := run(t, "", "127.0.0.1:1", "reserve", "acme", "24")
	if err == nil || !strings.Contains(err.Error(), "between 0 and 23") {
		t.Errorf("want hour error, got %v", err)
	}
}

func TestCoverage(t *testing.T) {
	var gotQuery string
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Query().Get("from") != "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"days": []apiclient.Coverage{
				{Day: "2024-04-30", Hours: make([]apiclient.HourCoverage, 24)},
				{Day: "2024-05-01", Hours: make([]apiclient.HourCoverage, 24), PeakCoverage: 75},
			}})
			return
		}
		writeJSON(w, http.StatusOK, apiclient.Coverage{
			Day:             "2024-05-01",
			TotalPortfolios: 4,
			Hours:           []apiclient.HourCoverage{{Hour: 9, PortfoliosWithIssues: 3, CoveragePercentage: 75}},
			PeakHours:       []int{9},
			PeakCoverage:    75,
		})
	}))

	out, err := run(t, url, "", "coverage", "--day", "2024-05-01")
	if err != nil {
		t.Fatalf("coverage: %v", err)
	}
	if gotQuery != "day=2024-05-01" || !strings.Contains(out, "peak: 09 at 75%") {
		t.Errorf("query %q, output:\n%s", gotQuery, out)
	}

	out, err = run(t, url, "", "coverage", "--from", "2024-04-30", "--to", "2024-05-01")
	if err != nil {
		t.Fatalf("coverage range: %v", err)
	}
	if !strings.Contains(out, "2024-04-30") || !strings.Contains(out, "75%") {
		t.Errorf("range output:\n%s", out)
	}

	if _, err := run(t, url, "", "coverage", "--from", "2024-04-30"); err == nil {
		t.Error("--from without --to should fail")
	}
}

func TestIssue(t *testing.T) {
	var in apiclient.IssueInput
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&in)
		writeJSON(w, http.StatusCreated, types.Issue{ID: "i1", PortfolioID: in.PortfolioID, IssueHour: in.IssueHour})
	}))

	out, err := run(t, url, "", "issue", "acme", "9", "--present", "--details", "camera 3", "--case", "CS-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if in.MonitoredBy != "alice" || in.IssueHour != 9 || !in.IssuePresent || in.CaseNumber != "CS-1" {
		t.Errorf("request: %+v", in)
	}
	if !strings.Contains(out, "Recorded i1 for acme hour 09") {
		t.Errorf("output: %s", out)
	}
}

func TestMetrics(t *testing.T) {
	const exposition = `# TYPE portwatch_reservations_active gauge
portwatch_reservations_active 3
# TYPE portwatch_reservation_acquisitions_total counter
portwatch_reservation_acquisitions_total{result="granted"} 5
portwatch_reservation_acquisitions_total{result="conflict"} 2
`
	url := startREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, exposition)
	}))

	out, err := run(t, url, "", "metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	for _, want := range []string{"Active reservations: 3", "conflict", "granted"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestExplicitConfigMissing(t *testing.T) {
	_, err := run(t, "", "", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "health")
	if err == nil {
		t.Fatal("want error for explicit missing config")
	}
}

func TestParseHour(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"0", 0, false},
		{"23", 23, false},
		{"09", 9, false},
		{"24", 0, true},
		{"-1", 0, true},
		{"nine", 0, true},
	}
	for _, tc := range tests {
		got, err := parseHour(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("parseHour(%q) = %d, %v", tc.in, got, err)
		}
	}
}
