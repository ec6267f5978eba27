package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of the portal session. Only an Active session
// may issue authorized requests.
type State int

const (
	StateUnauthenticated State = iota
	StateActive
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Credentials identify the subscriber against the self-care portal.
// The password is held in memory only and must never appear in log output.
type Credentials struct {
	Username string
	Password string
}

// Config holds portal connection settings.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Response is the raw outcome of an authorized request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Manager owns the portal session: the cookie jar, the session state machine
// and the only code path that mutates it. Requests read a snapshot of the
// session epoch so a stale unauthorized response cannot expire a session that
// was re-established concurrently.
type Manager struct {
	cfg    Config
	creds  Credentials
	logger zerolog.Logger

	// authClient follows redirects (the login POST lands on the dashboard);
	// apiClient does not, so a redirect back to the login page is visible as
	// an expiry signal instead of silently re-fetching the login form.
	authClient *http.Client
	apiClient  *http.Client

	mu       sync.Mutex
	state    State
	epoch    int
	issuedAt time.Time
}

// NewManager creates a session manager for the given portal and credentials.
func NewManager(cfg Config, creds Credentials, logger zerolog.Logger) (*Manager, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("portal base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid portal base URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Manager{
		cfg:    cfg,
		creds:  creds,
		logger: logger.With().Str("component", "session").Logger(),
		authClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		apiClient: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// State returns the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IssuedAt returns when the current session was established.
func (m *Manager) IssuedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issuedAt
}

// Authenticate submits the credentials to the portal's login endpoint.
// On success the session cookie is stored in the jar and the session becomes
// Active. A rejected login leaves the session Unauthenticated.
func (m *Manager) Authenticate(ctx context.Context) error {
	form := url.Values{
		"_username":  {m.creds.Username},
		"_password":  {m.creds.Password},
		"_logintype": {"login"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/", strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthError{Kind: AuthProtocolMismatch, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	m.logger.Debug().Str("username", m.creds.Username).Msg("Submitting login request")

	resp, err := m.authClient.Do(req)
	if err != nil {
		m.fail()
		return &AuthError{Kind: AuthProtocolMismatch, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		m.fail()
		return &AuthError{Kind: AuthProtocolMismatch, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		m.fail()
		return &AuthError{
			Kind: AuthProtocolMismatch,
			Err:  fmt.Errorf("login endpoint returned status %d", resp.StatusCode),
		}
	}

	switch classifyLanding(body) {
	case landingAuthenticated:
		m.mu.Lock()
		m.state = StateActive
		m.epoch++
		m.issuedAt = time.Now()
		epoch := m.epoch
		m.mu.Unlock()
		m.logger.Info().Int("epoch", epoch).Msg("Session established")
		return nil
	case landingLoginForm:
		m.fail()
		return &AuthError{Kind: AuthInvalidCredentials}
	default:
		m.fail()
		return &AuthError{
			Kind: AuthProtocolMismatch,
			Err:  fmt.Errorf("login response not recognized as portal markup"),
		}
	}
}

// Do issues an authorized request against the portal. It requires an Active
// session; an unauthorized answer transitions the session to Expired and is
// surfaced as Error{ErrExpired} without any automatic retry.
func (m *Manager) Do(ctx context.Context, method, path string, query url.Values) (*Response, error) {
	m.mu.Lock()
	if m.state != StateActive {
		state := m.state
		m.mu.Unlock()
		return nil, &Error{
			Kind: ErrExpired,
			Path: path,
			Err:  fmt.Errorf("session is %s", state),
		}
	}
	epoch := m.epoch
	m.mu.Unlock()

	u := m.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Path: path, Err: err}
	}
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	resp, err := m.apiClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Path: path, Err: err}
	}

	if unauthorized(resp) {
		m.expire(epoch)
		return nil, &Error{
			Kind: ErrExpired,
			Path: path,
			Err:  fmt.Errorf("portal returned status %d", resp.StatusCode),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

// expire moves the session to Expired, unless a newer session was established
// after the observed epoch.
func (m *Manager) expire(epoch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.state != StateActive {
		return
	}
	m.state = StateExpired
	m.logger.Warn().Int("epoch", epoch).Msg("Session expired")
}

// fail resets the state after an unsuccessful authentication attempt.
func (m *Manager) fail() {
	m.mu.Lock()
	m.state = StateUnauthenticated
	m.mu.Unlock()
}

// unauthorized reports whether a portal response signals a dead session:
// an explicit 401/403, or a redirect back to the portal root (the login page).
func unauthorized(resp *http.Response) bool {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		return loc == "/" || strings.HasSuffix(loc, "login") || loc == ""
	}
	return false
}

type landingKind int

const (
	landingUnknown landingKind = iota
	landingLoginForm
	landingAuthenticated
)

// classifyLanding decides what the portal served after the login POST.
// A re-served login form means the credentials were rejected; dashboard
// markup (line anchors or a logout control) means the session is live.
func classifyLanding(body []byte) landingKind {
	switch {
	case bytes.Contains(body, []byte(`name="_username"`)):
		return landingLoginForm
	case bytes.Contains(body, []byte("/nastaveni-tarifu-a-sluzeb/")),
		bytes.Contains(body, []byte("/odhlasit")):
		return landingAuthenticated
	default:
		return landingUnknown
	}
}
