package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/famline/famline/internal/config"
	"github.com/famline/famline/internal/portal"
	"github.com/famline/famline/internal/session"
	"github.com/famline/famline/internal/usage"
)

const (
	testUser     = "alice"
	testPassword = "s3cret"
	testCookie   = "PHPSESSID"
)

// fakePortal is a minimal self-care portal: form login with a session cookie,
// a dashboard listing the plan's lines, and a per-line tariff API.
type fakePortal struct {
	mu          sync.Mutex
	logins      int
	valid       map[string]bool
	rejectLogin bool
	failIDs     map[string]bool
	payloads    map[string]string // id -> tariff JSON
	order       []string
	numbers     map[string]string
}

func newFakePortal() *fakePortal {
	f := &fakePortal{
		valid:   make(map[string]bool),
		failIDs: make(map[string]bool),
		order:   []string{"101", "102", "103"},
		numbers: map[string]string{
			"101": "603111222",
			"102": "603333444",
			"103": "603555666",
		},
		payloads: make(map[string]string),
	}
	for id, number := range f.numbers {
		f.payloads[id] = fmt.Sprintf(`{
			"msisdn": %q,
			"tariffName": "Family M",
			"cycleEnd": "2026-09-14",
			"data": {"used": 1024, "limit": 10240, "unit": "MB"},
			"voice": {"used": 30, "limit": 300},
			"sms": {"used": 5, "limit": 100}
		}`, number)
	}
	return f
}

func (f *fakePortal) dashboardHTML() string {
	var sb strings.Builder
	sb.WriteString(`<html><body><a href="/odhlasit">Odhlásit</a><ul>`)
	for _, id := range f.order {
		fmt.Fprintf(&sb, `<li><a href="/nastaveni-tarifu-a-sluzeb/%s/prehled">%s</a></li>`, id, f.numbers[id])
	}
	sb.WriteString(`</ul></body></html>`)
	return sb.String()
}

func (f *fakePortal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.FormValue("_logintype") == "login" {
			f.mu.Lock()
			f.logins++
			reject := f.rejectLogin || r.FormValue("_username") != testUser || r.FormValue("_password") != testPassword
			f.mu.Unlock()

			if reject {
				_, _ = w.Write([]byte(`<html><body><form><input name="_username"/></form></body></html>`))
				return
			}
			f.mu.Lock()
			token := fmt.Sprintf("tok-%d", f.logins)
			f.valid[token] = true
			f.mu.Unlock()
			http.SetCookie(w, &http.Cookie{Name: testCookie, Value: token, Path: "/"})
			_, _ = w.Write([]byte(f.dashboardHTML()))
			return
		}

		if !f.authorized(r) {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte(f.dashboardHTML()))
	})

	mux.HandleFunc("/api/tariff-info/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/tariff-info/")
		f.mu.Lock()
		fail := f.failIDs[id]
		payload, ok := f.payloads[id]
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	})
	return mux
}

func (f *fakePortal) authorized(r *http.Request) bool {
	c, err := r.Cookie(testCookie)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid[c.Value]
}

func (f *fakePortal) expireSessions() {
	f.mu.Lock()
	f.valid = map[string]bool{}
	f.mu.Unlock()
}

func (f *fakePortal) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func newTestRunner(t *testing.T, f *fakePortal, password string) *Runner {
	t.Helper()

	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Portal: config.PortalConfig{
			BaseURL:     srv.URL,
			Timeout:     "5s",
			MaxParallel: 2,
		},
		Credentials: config.CredentialsConfig{
			Username: testUser,
			Password: password,
		},
	}

	r, err := New(cfg, Options{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

// Scenario: every line succeeds with finite allowances; totals are the exact
// sum and the entries follow the enumeration order.
func TestRun_AllLinesSucceed(t *testing.T) {
	r := newTestRunner(t, newFakePortal(), testPassword)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rep := res.Report
	if rep.Totals.Lines != 3 || rep.Totals.Unavailable != 0 {
		t.Fatalf("totals = %d lines / %d unavailable, want 3/0", rep.Totals.Lines, rep.Totals.Unavailable)
	}
	if rep.Totals.Data.Used != 3*1024*(1<<20) {
		t.Errorf("Data.Used = %d, want %d", rep.Totals.Data.Used, int64(3*1024)*(1<<20))
	}
	if rep.Totals.Data.Allowance != 3*10240*(1<<20) {
		t.Errorf("Data.Allowance = %d, want %d", rep.Totals.Data.Allowance, int64(3*10240)*(1<<20))
	}

	wantOrder := []string{"603111222", "603333444", "603555666"}
	for i, want := range wantOrder {
		if rep.Lines[i].Line.Number != want {
			t.Errorf("entry %d = %s, want %s", i, rep.Lines[i].Line.Number, want)
		}
	}
	if rep.Lines[0].Line.Type != usage.LinePrimary {
		t.Errorf("first line type = %s, want primary", rep.Lines[0].Line.Type)
	}
}

// Scenario: rejected credentials abort the run before any report exists.
func TestRun_InvalidCredentials(t *testing.T) {
	r := newTestRunner(t, newFakePortal(), "wrong")

	res, err := r.Run(context.Background())
	if res != nil {
		t.Fatal("no report should be produced on auth failure")
	}

	var aerr *session.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("error type = %T, want *session.AuthError", err)
	}
	if aerr.Kind != session.AuthInvalidCredentials {
		t.Errorf("Kind = %v, want invalid credentials", aerr.Kind)
	}
	if strings.Contains(err.Error(), "wrong") {
		t.Error("error message must not leak the password")
	}
}

// Scenario: one line's usage endpoint keeps failing; it renders unavailable,
// the rest succeed and the totals exclude it.
func TestRun_OneLineUnavailable(t *testing.T) {
	f := newFakePortal()
	f.failIDs["102"] = true
	r := newTestRunner(t, f, testPassword)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rep := res.Report
	if rep.Totals.Unavailable != 1 {
		t.Fatalf("unavailable = %d, want 1", rep.Totals.Unavailable)
	}
	if !rep.Lines[1].Unavailable {
		t.Error("line 603333444 should carry the unavailable marker")
	}
	if rep.Totals.Data.Used != 2*1024*(1<<20) {
		t.Errorf("Data.Used = %d, failed line must be excluded", rep.Totals.Data.Used)
	}
}

// Scenario: a line reports unlimited data; its own usage still shows, the
// totals' numeric sum excludes it and the unlimited flag is set.
func TestRun_UnlimitedLine(t *testing.T) {
	f := newFakePortal()
	f.payloads["103"] = `{
		"msisdn": "603555666",
		"tariffName": "Family Neo",
		"cycleEnd": "2026-09-14",
		"data": {"used": 4096, "unit": "MB", "unlimited": true},
		"voice": {"used": 30, "limit": 300},
		"sms": {"used": 5, "limit": 100}
	}`
	r := newTestRunner(t, f, testPassword)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rep := res.Report
	if !rep.Totals.UnlimitedData {
		t.Error("UnlimitedData flag should be set")
	}
	if rep.Totals.Data.Used != 2*1024*(1<<20) {
		t.Errorf("Data.Used = %d, unlimited line must be excluded from the sum", rep.Totals.Data.Used)
	}
	entry := rep.Lines[2]
	if entry.Unavailable || !entry.Record.Data.IsUnlimited() {
		t.Errorf("unlimited entry = %+v", entry)
	}
	if entry.Record.Data.Used != 4096*(1<<20) {
		t.Errorf("unlimited line usage = %d, want %d", entry.Record.Data.Used, int64(4096)*(1<<20))
	}
}

// Scenario: the session expires between line listing and the first usage
// fetch; exactly one re-authentication happens and the run completes.
func TestRun_ExpiryBetweenListingAndFetch(t *testing.T) {
	f := newFakePortal()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		Portal:      config.PortalConfig{BaseURL: srv.URL, Timeout: "5s", MaxParallel: 1},
		Credentials: config.CredentialsConfig{Username: testUser, Password: testPassword},
	}

	sess, err := session.NewManager(
		session.Config{BaseURL: cfg.Portal.BaseURL, Timeout: cfg.PortalTimeout()},
		session.Credentials{Username: testUser, Password: testPassword},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if err := sess.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	client := portal.NewClient(sess, portal.Config{MaxParallel: 1}, zerolog.Nop())
	lines, err := client.ListLines(context.Background())
	if err != nil {
		t.Fatalf("ListLines failed: %v", err)
	}

	f.expireSessions()

	results, err := client.FetchAll(context.Background(), lines)
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	for i, res := range results {
		if res.Unavailable() {
			t.Errorf("line %d unavailable: %v", i, res.Err)
		}
	}
	if got := f.loginCount(); got != 2 {
		t.Errorf("logins = %d, want exactly one re-authentication", got)
	}
}

// Scenario: re-authentication itself fails after expiry; the run aborts with
// a lost session.
func TestRun_ReauthFailureAbortsRun(t *testing.T) {
	f := newFakePortal()
	r := newTestRunner(t, f, testPassword)

	// Prime the session with a successful run, then break both the session
	// and the login endpoint.
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("priming run failed: %v", err)
	}
	f.expireSessions()
	f.mu.Lock()
	f.rejectLogin = true
	f.mu.Unlock()

	_, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("Run should fail when re-authentication is rejected")
	}

	var aerr *session.AuthError
	var ferr *portal.FetchError
	switch {
	case errors.As(err, &ferr):
		if ferr.Kind != portal.FetchSessionLost {
			t.Errorf("Kind = %v, want session lost", ferr.Kind)
		}
	case errors.As(err, &aerr):
		// The expiry surfaced before any authorized call, so the run died
		// on the explicit re-login instead.
	default:
		t.Errorf("error type = %T, want fetch or auth error", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	cfg := &config.Config{
		Portal: config.PortalConfig{BaseURL: "https://example.test", Timeout: "5s"},
	}
	if _, err := New(cfg, Options{}, zerolog.Nop()); err == nil {
		t.Fatal("New should reject empty credentials")
	}
}

func TestRun_Cancellation(t *testing.T) {
	r := newTestRunner(t, newFakePortal(), testPassword)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Run(ctx); err == nil {
		t.Fatal("Run should fail when the context is already cancelled")
	}
}
