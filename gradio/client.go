package gradio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultHFAPIBase = "https://huggingface.co"

	maxErrorBody = 4 << 10
)

type Config struct {
	// Space is either an "owner/name" Hugging Face Space id or the base URL of a Gradio app.
	Space     string
	HFAPIBase string
	// Token is sent as a bearer token on every request when set.
	Token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// Client talks to one Gradio Space. The connection is established on first use and shared by
// all callers; it is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client

	mu   sync.Mutex
	conn *connection
}

type connection struct {
	host    string
	prefix  string
	version string
	// routes is nil when the app config does not list named endpoints.
	routes map[string]struct{}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.HFAPIBase == "" {
		cfg.HFAPIBase = DefaultHFAPIBase
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect resolves the Space and loads its config if that has not happened yet.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connection(ctx)
	return err
}

// Host returns the resolved base URL, or "" before the first successful connect.
func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.host
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) connection(ctx context.Context) (*connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	log.Info().
		Str("space", c.cfg.Space).
		Str("host", conn.host).
		Str("version", conn.version).
		Msg("connected to gradio space")
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*connection, error) {
	host, err := c.resolveHost(ctx)
	if err != nil {
		return nil, connectError("resolve space", err)
	}

	var cfg struct {
		Version      string `json:"version"`
		APIPrefix    string `json:"api_prefix"`
		Dependencies []struct {
			APIName any `json:"api_name"`
		} `json:"dependencies"`
	}
	if err := c.getJSON(ctx, host+"/config", &cfg); err != nil {
		return nil, connectError("load config", err)
	}

	conn := &connection{
		host:    host,
		prefix:  strings.TrimRight(cfg.APIPrefix, "/"),
		version: cfg.Version,
	}
	for _, dep := range cfg.Dependencies {
		name, ok := dep.APIName.(string)
		if !ok || name == "" {
			continue
		}
		if conn.routes == nil {
			conn.routes = make(map[string]struct{})
		}
		conn.routes[name] = struct{}{}
	}
	return conn, nil
}

func (c *Client) resolveHost(ctx context.Context) (string, error) {
	space := strings.TrimSpace(c.cfg.Space)
	if strings.HasPrefix(space, "http://") || strings.HasPrefix(space, "https://") {
		return strings.TrimRight(space, "/"), nil
	}
	if strings.Count(space, "/") != 1 {
		return "", fmt.Errorf("invalid space id %q", space)
	}

	var info struct {
		Subdomain string `json:"subdomain"`
		Host      string `json:"host"`
	}
	url := strings.TrimRight(c.cfg.HFAPIBase, "/") + "/api/spaces/" + space + "/host"
	if err := c.getJSON(ctx, url, &info); err != nil {
		return "", err
	}
	if info.Host == "" {
		return "", fmt.Errorf("space %q has no host", space)
	}
	return strings.TrimRight(info.Host, "/"), nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteErrorFrom(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrProtocol, url, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return resp, nil
}

func remoteErrorFrom(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))

	var envelope struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Error != "":
			msg = envelope.Error
		case envelope.Detail != nil:
			if s, ok := envelope.Detail.(string); ok {
				msg = s
			} else if b, err := json.Marshal(envelope.Detail); err == nil {
				msg = string(b)
			}
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &RemoteError{Status: resp.StatusCode, Message: msg}
}

func isRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}
