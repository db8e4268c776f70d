package gmail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// CredentialsFile is the OAuth client secret downloaded from the Google
// Cloud console, looked up inside the config dir.
const CredentialsFile = "credentials.json"

// TokenFile is the default file token store inside the config dir.
const TokenFile = "token.json"

// loopbackWait bounds how long the loopback redirect is awaited before only
// a pasted code is accepted.
const loopbackWait = 120 * time.Second

// Prompt is how the consent flow reaches the user: it shows the consent URL
// and may deliver a pasted auth code or redirect URL.
type Prompt interface {
	ShowURL(authURL, redirect string)
	Codes() <-chan string
}

// AuthOptions configure how a Gmail service is authorized.
type AuthOptions struct {
	ConfigDir string
	Tokens    TokenStore // defaults to <ConfigDir>/token.json
	Prompt    Prompt     // defaults to a stderr/stdin prompt
	Logger    *slog.Logger
}

func (o AuthOptions) tokens() TokenStore {
	if o.Tokens != nil {
		return o.Tokens
	}
	return FileTokenStore{Path: filepath.Join(o.ConfigDir, TokenFile)}
}

func (o AuthOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger.With("component", "auth")
}

func oauthConfig(configDir string) (*oauth2.Config, error) {
	credPath := filepath.Join(configDir, CredentialsFile)
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}
	return cfg, nil
}

// Token returns a usable token: the stored one if still valid, a refreshed
// one if it can be refreshed, otherwise one from the interactive consent
// flow. New tokens are saved before returning.
func Token(ctx context.Context, cfg *oauth2.Config, opts AuthOptions) (*oauth2.Token, error) {
	store := opts.tokens()
	logger := opts.logger()

	tok, err := store.Load()
	switch {
	case err == nil && tok.Valid():
		return tok, nil
	case err == nil && tok.RefreshToken != "":
		fresh, rerr := cfg.TokenSource(ctx, tok).Token()
		if rerr == nil {
			if serr := store.Save(fresh); serr != nil {
				return nil, fmt.Errorf("save token: %w", serr)
			}
			logger.Info("refreshed stored token")
			return fresh, nil
		}
		logger.Warn("token refresh failed, starting consent flow", "err", rerr)
	case err != nil && !errors.Is(err, ErrNoToken):
		logger.Warn("stored token unreadable, starting consent flow", "err", err)
	}

	prompt := opts.Prompt
	if prompt == nil {
		prompt = NewConsolePrompt(os.Stderr, os.Stdin)
	}
	tok, err = consent(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}
	if err := store.Save(tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	logger.Info("authorized and stored new token")
	return tok, nil
}

// Authorize runs the token flow without building a service.
func Authorize(ctx context.Context, opts AuthOptions) error {
	cfg, err := oauthConfig(opts.ConfigDir)
	if err != nil {
		return err
	}
	_, err = Token(ctx, cfg, opts)
	return err
}

// Connect authorizes and returns a mailbox service backed by the Gmail API.
// Refreshed tokens are written back to the token store.
func Connect(ctx context.Context, opts AuthOptions) (*Service, error) {
	cfg, err := oauthConfig(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	tok, err := Token(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	src := &savingSource{
		base:   oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		store:  opts.tokens(),
		last:   tok.AccessToken,
		logger: opts.logger(),
	}
	api, err := gmailv1.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, src)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewService(api, opts.Logger), nil
}

// savingSource persists every token its base source refreshes.
type savingSource struct {
	base   oauth2.TokenSource
	store  TokenStore
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.store.Save(tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "err", err)
		}
	}
	return tok, nil
}

// consent runs a loopback HTTP server to capture the auth code while also
// accepting a pasted code or redirect URL from the prompt.
func consent(ctx context.Context, cfg *oauth2.Config, prompt Prompt) (*oauth2.Token, error) {
	c := *cfg

	codeCh := make(chan string, 1)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	var srv *http.Server
	if err == nil {
		c.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)
		mux := http.NewServeMux()
		srv = &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
		})
		go func() { _ = srv.Serve(ln) }()
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	authURL := c.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	prompt.ShowURL(authURL, c.RedirectURL)

	loopback := (<-chan string)(codeCh)
	var timeout <-chan time.Time
	if srv != nil {
		t := time.NewTimer(loopbackWait)
		defer t.Stop()
		timeout = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case code := <-loopback:
			return exchange(ctx, &c, code)
		case input, ok := <-prompt.Codes():
			if !ok {
				return nil, errors.New("empty authorization code")
			}
			code, err := parseCode(input)
			if err != nil {
				return nil, err
			}
			return exchange(ctx, &c, code)
		case <-timeout:
			// Loopback gave up; keep waiting for a pasted code only.
			timeout = nil
			loopback = nil
		}
	}
}

func exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// parseCode accepts either the bare auth code or the full redirect URL.
func parseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	c := u.Query().Get("code")
	if c == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return c, nil
}

// ConsolePrompt tries to open the consent URL in a browser, prints it to out
// and reads one pasted line from in.
type ConsolePrompt struct {
	out   io.Writer
	codes chan string
	open  func(string) error
}

func NewConsolePrompt(out io.Writer, in io.Reader) *ConsolePrompt {
	p := &ConsolePrompt{out: out, codes: make(chan string, 1), open: OpenBrowser}
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 1024), 1024*1024)
		if sc.Scan() {
			p.codes <- sc.Text()
		}
		close(p.codes)
	}()
	return p
}

func (p *ConsolePrompt) ShowURL(authURL, redirect string) {
	if p.open != nil && p.open(authURL) == nil {
		fmt.Fprintln(p.out, "A browser window will open. If it does not, copy this URL:")
	} else {
		fmt.Fprintln(p.out, "Open this URL in your browser to authorize the email extractor:")
	}
	fmt.Fprintln(p.out, authURL)
	if redirect != "" {
		fmt.Fprintf(p.out, "Waiting for redirect on %s …\n", redirect)
	}
	fmt.Fprintln(p.out, "Or paste the AUTH CODE or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(p.out, "> ")
}

func (p *ConsolePrompt) Codes() <-chan string { return p.codes }

// ChanPrompt hands the consent URL to a UI over URLs and takes pasted codes
// from Input.
type ChanPrompt struct {
	URLs  chan<- string
	Input <-chan string
}

func (p ChanPrompt) ShowURL(authURL, _ string) { p.URLs <- authURL }

func (p ChanPrompt) Codes() <-chan string { return p.Input }
