package lit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type executeResult struct {
	url  string
	resp ExecuteResponse
	err  error
}

// ExecuteJS runs code on every connected node and returns the response at
// least MinNodeCount nodes agree on. Executions are not retried: the code
// may have side effects that already happened.
func (c *Client) ExecuteJS(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	if !c.Ready() {
		return nil, ErrNotReady
	}
	if req.Code == "" {
		return nil, errors.New("code is required")
	}
	nodes := lo.Filter(c.ConnectedNodes(), func(u string, _ int) bool {
		_, ok := req.SessionSigs[u]
		return ok
	})
	if len(nodes) < c.cfg.MinNodeCount {
		return nil, errors.Wrapf(ErrAuth, "session signatures cover %d nodes, need %d", len(nodes), c.cfg.MinNodeCount)
	}

	code := base64.StdEncoding.EncodeToString([]byte(req.Code))
	jsParams := req.JSParams
	if jsParams == nil {
		jsParams = map[string]any{}
	}

	results := make([]executeResult, len(nodes))
	var g errgroup.Group
	for i, nodeURL := range nodes {
		i, nodeURL := i, nodeURL // per-iteration copy (pre-Go 1.22 loop semantics)
		g.Go(func() error {
			body := executeRequestBody{Code: code, JSParams: jsParams, AuthSig: req.SessionSigs[nodeURL]}
			var resp ExecuteResponse
			err := c.postExecute(ctx, nodeURL, body, &resp)
			results[i] = executeResult{url: nodeURL, resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "execute")
	}
	return c.aggregate(results)
}

func (c *Client) aggregate(results []executeResult) (*ExecuteResponse, error) {
	var authFailures, transportFailures int
	for _, r := range results {
		if r.err == nil {
			continue
		}
		var nodeErr *NodeError
		if errors.As(r.err, &nodeErr) && nodeErr.IsAuth() {
			authFailures++
		} else {
			transportFailures++
		}
		c.logger.Debug("execute failed", zap.String("node", r.url), zap.Error(r.err))
	}

	ok := lo.Filter(results, func(r executeResult, _ int) bool { return r.err == nil })
	if len(ok) < c.cfg.MinNodeCount {
		kind := ErrTransport
		if authFailures > 0 {
			kind = ErrAuth
		}
		first, _ := lo.Find(results, func(r executeResult) bool { return r.err != nil })
		return nil, &KindError{
			Kind: kind,
			Op:   fmt.Sprintf("%d of %d nodes answered, need %d", len(ok), len(results), c.cfg.MinNodeCount),
			Err:  first.err,
		}
	}

	type key struct {
		success  bool
		response string
	}
	groups := lo.GroupBy(ok, func(r executeResult) key { return key{r.resp.Success, r.resp.Response} })
	best := lo.MaxBy(lo.Values(groups), func(a, b []executeResult) bool { return len(a) > len(b) })
	if len(best) < c.cfg.MinNodeCount {
		return nil, errors.Wrapf(ErrConsensus, "%d distinct responses, largest agreement %d, need %d",
			len(groups), len(best), c.cfg.MinNodeCount)
	}

	out := best[0].resp
	out.Nodes = len(best)
	if c.cfg.Debug && out.Logs != "" {
		c.logger.Debug("action logs", zap.String("logs", out.Logs))
	}
	c.logger.Debug("execution agreed",
		zap.Int("nodes", out.Nodes),
		zap.Int("auth_failures", authFailures),
		zap.Int("transport_failures", transportFailures),
		zap.Bool("success", out.Success))
	return &out, nil
}

func (c *Client) postExecute(ctx context.Context, nodeURL string, body executeRequestBody, out *ExecuteResponse) (err error) {
	start := c.now()
	defer func() { c.metrics.RecordNodeRequest(ctx, "execute", c.now().Sub(start), err) }()

	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL+executePath, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	setHeaders(req.Header)

	resp, err := c.executeHTTP.Do(req)
	if err != nil {
		return &NodeError{URL: nodeURL, Err: err}
	}
	defer resp.Body.Close()
	return decodeNodeResponse(nodeURL, resp, out)
}
