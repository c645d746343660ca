// Package lit talks to the decentralized key-management network: it
// handshakes with the nodes, negotiates session credentials on behalf of a
// local wallet and runs actions, returning the response the nodes agree on.
package lit

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trufnetwork/token-attester/internal/metrics"
)

const (
	NetworkDatilDev  = "datil-dev"
	NetworkDatilTest = "datil-test"
	NetworkDatil     = "datil"

	handshakePath = "/web/handshake"
	executePath   = "/web/execute/v2"

	defaultRequestTimeout = 2 * time.Minute
	defaultConnectTimeout = 30 * time.Second
	// Retries of a single node's handshake inside one round.
	defaultHandshakeRetries = 2
	maxResponseBytes      = 4 << 20
)

// Config configures a Client.
type Config struct {
	Network  string
	NodeURLs []string
	// MinNodeCount is the number of agreeing nodes required. Zero means a
	// two thirds majority of NodeURLs.
	MinNodeCount     int
	RequestTimeout   time.Duration
	ConnectTimeout   time.Duration
	// HandshakeRetries is how often one node's handshake is retried after a
	// connection error or 5xx. Zero selects the default; negative disables
	// retries.
	HandshakeRetries int
	Storage          Storage
	Debug            bool
}

func (c *Config) applyDefaults() {
	if c.Network == "" {
		c.Network = NetworkDatilDev
	}
	if c.MinNodeCount <= 0 {
		c.MinNodeCount = (2*len(c.NodeURLs) + 2) / 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	switch {
	case c.HandshakeRetries == 0:
		c.HandshakeRetries = defaultHandshakeRetries
	case c.HandshakeRetries < 0:
		c.HandshakeRetries = 0
	}
	if c.Storage == nil {
		c.Storage = NewFileStorage(DefaultStoragePath)
	}
}

func (c *Config) validate() error {
	if len(c.NodeURLs) == 0 {
		return errors.New("at least one node url is required")
	}
	for _, u := range c.NodeURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return errors.Errorf("node url %q must be http(s)", u)
		}
	}
	if c.MinNodeCount > len(c.NodeURLs) {
		return errors.Errorf("min node count %d exceeds %d configured nodes", c.MinNodeCount, len(c.NodeURLs))
	}
	return nil
}

// Client is a long-lived connection to the network, shared by every task.
// It is safe for concurrent use once connected.
type Client struct {
	cfg     Config
	logger  *zap.Logger
	metrics metrics.Recorder

	handshakeHTTP *retryablehttp.Client
	executeHTTP   *http.Client
	now           func() time.Time

	mu              sync.RWMutex
	ready           bool
	connectedNodes  []string
	latestBlockhash string
	networkPubKey   string
}

type ClientOption func(*Client)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m metrics.Recorder) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithHTTPClient replaces the transport used for both handshakes and
// executions.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.executeHTTP = h
		c.handshakeHTTP.HTTPClient = h
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	cfg.NodeURLs = lo.Map(cfg.NodeURLs, func(u string, _ int) string { return strings.TrimRight(strings.TrimSpace(u), "/") })
	cfg.NodeURLs = lo.Uniq(lo.Compact(cfg.NodeURLs))
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("lit")

	hs := retryablehttp.NewClient()
	hs.RetryMax = cfg.HandshakeRetries
	hs.RetryWaitMin = 200 * time.Millisecond
	hs.RetryWaitMax = 2 * time.Second
	hs.HTTPClient.Timeout = cfg.ConnectTimeout
	hs.Logger = leveledLogger{logger.Sugar()}

	c := &Client{
		cfg:           cfg,
		logger:        logger,
		metrics:       metrics.NewNoOp(),
		handshakeHTTP: hs,
		executeHTTP:   &http.Client{Timeout: cfg.RequestTimeout},
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Network is the configured network name.
func (c *Client) Network() string { return c.cfg.Network }

// MinNodeCount is the consensus threshold.
func (c *Client) MinNodeCount() int { return c.cfg.MinNodeCount }

// Ready reports whether Connect succeeded.
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// ConnectedNodes lists the nodes that completed the last handshake.
func (c *Client) ConnectedNodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.connectedNodes...)
}

// NetworkPublicKey is the key the nodes reported during the handshake.
func (c *Client) NetworkPublicKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.networkPubKey
}

// Connect handshakes with the network until at least MinNodeCount nodes
// agree, backing off between rounds. Failure leaves the client unusable
// until Connect is called again.
func (c *Client) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = c.cfg.ConnectTimeout

	round := 0
	err := backoff.Retry(func() error {
		round++
		err := c.handshakeRound(ctx)
		if err != nil {
			c.logger.Warn("handshake round failed", zap.Int("round", round), zap.Error(err))
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
		}
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		c.mu.Lock()
		c.ready = false
		c.mu.Unlock()
		return &KindError{Kind: ErrTransport, Op: "connect to " + c.cfg.Network, Err: err}
	}

	c.logger.Info("connected to network",
		zap.String("network", c.cfg.Network),
		zap.Strings("nodes", c.ConnectedNodes()),
		zap.Int("min_node_count", c.cfg.MinNodeCount))
	return nil
}

// Disconnect marks the client unusable and releases idle connections.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.ready = false
	c.connectedNodes = nil
	c.mu.Unlock()

	c.executeHTTP.CloseIdleConnections()
	c.handshakeHTTP.HTTPClient.CloseIdleConnections()
	c.logger.Debug("disconnected")
}

// LatestBlockhash handshakes again and returns the blockhash most nodes
// report, for use as an anti-replay nonce.
func (c *Client) LatestBlockhash(ctx context.Context) (string, error) {
	if !c.Ready() {
		return "", ErrNotReady
	}
	if err := c.handshakeRound(ctx); err != nil {
		return "", &KindError{Kind: ErrTransport, Op: "refresh blockhash", Err: err}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestBlockhash, nil
}

type handshakeResult struct {
	url  string
	resp *handshakeResponse
	err  error
}

func (c *Client) handshakeRound(ctx context.Context) error {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return errors.Wrap(err, "generate challenge")
	}
	body := handshakeRequest{ClientPublicKey: "test", Challenge: hex.EncodeToString(challenge)}

	results := make([]handshakeResult, len(c.cfg.NodeURLs))
	var g errgroup.Group
	for i, nodeURL := range c.cfg.NodeURLs {
		i, nodeURL := i, nodeURL // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			var resp handshakeResponse
			err := c.postHandshake(ctx, nodeURL, body, &resp)
			results[i] = handshakeResult{url: nodeURL, resp: &resp, err: err}
			return nil
		})
	}
	_ = g.Wait()

	ok := lo.Filter(results, func(r handshakeResult, _ int) bool {
		return r.err == nil && r.resp.LatestBlockhash != ""
	})
	for _, r := range results {
		if r.err != nil {
			c.logger.Debug("handshake failed", zap.String("node", r.url), zap.Error(r.err))
		}
	}

	groups := lo.GroupBy(ok, func(r handshakeResult) string { return r.resp.LatestBlockhash })
	if len(groups) == 0 {
		return errors.Errorf("0 of %d nodes completed the handshake", len(results))
	}
	best := lo.MaxBy(lo.Entries(groups), func(a, b lo.Entry[string, []handshakeResult]) bool {
		return len(a.Value) > len(b.Value)
	})
	if len(best.Value) < c.cfg.MinNodeCount {
		return errors.Errorf("%d of %d nodes agree on the latest blockhash, need %d",
			len(best.Value), len(results), c.cfg.MinNodeCount)
	}

	c.mu.Lock()
	c.ready = true
	c.latestBlockhash = best.Key
	c.networkPubKey = best.Value[0].resp.NetworkPublicKey
	c.connectedNodes = lo.Map(ok, func(r handshakeResult, _ int) string { return r.url })
	c.mu.Unlock()
	return nil
}

func (c *Client) postHandshake(ctx context.Context, nodeURL string, body any, out any) (err error) {
	start := c.now()
	defer func() { c.metrics.RecordNodeRequest(ctx, "handshake", c.now().Sub(start), err) }()

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, nodeURL+handshakePath, raw)
	if err != nil {
		return err
	}
	setHeaders(req.Header)

	resp, err := c.handshakeHTTP.Do(req)
	if err != nil {
		return &NodeError{URL: nodeURL, Err: err}
	}
	defer resp.Body.Close()
	return decodeNodeResponse(nodeURL, resp, out)
}

func setHeaders(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("X-Request-Id", "lit_"+uuid.NewString())
}

func decodeNodeResponse(nodeURL string, resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NodeError{URL: nodeURL, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &NodeError{URL: nodeURL, Status: resp.StatusCode, Err: errors.New(msg)}
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(out); err != nil {
		return &NodeError{URL: nodeURL, Status: resp.StatusCode, Err: errors.Wrap(err, "decode node response")}
	}
	return nil
}

// leveledLogger adapts zap to retryablehttp's logger interface.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
