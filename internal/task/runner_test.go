package task

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trufnetwork/token-attester/internal/action"
	"github.com/trufnetwork/token-attester/internal/lit"
	"github.com/trufnetwork/token-attester/internal/metrics"
	"github.com/trufnetwork/token-attester/internal/siwe"
	"github.com/trufnetwork/token-attester/internal/wallet"
)

type fakeNetwork struct {
	mu sync.Mutex

	blockhash  string
	sessionErr error
	execErr    error
	response   *lit.ExecuteResponse

	sessionReqs []lit.SessionSigsRequest
	authSigs    []*lit.AuthSig
	executions  []lit.ExecuteRequest
}

func (f *fakeNetwork) LatestBlockhash(context.Context) (string, error) {
	return f.blockhash, nil
}

func (f *fakeNetwork) SessionSigs(ctx context.Context, req lit.SessionSigsRequest, auth lit.AuthSigner) (lit.SessionSigs, error) {
	f.mu.Lock()
	f.sessionReqs = append(f.sessionReqs, req)
	f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}

	sig, err := auth.SignAuth(ctx, lit.AuthCallbackParams{
		ResourceAbilityRequests: req.ResourceAbilityRequests,
		Expiration:              req.Expiration,
		URI:                     lit.SessionKeyURIPrefix + "abcd",
	})
	if err != nil {
		return nil, &lit.KindError{Kind: lit.ErrAuth, Err: err}
	}
	f.mu.Lock()
	f.authSigs = append(f.authSigs, sig)
	f.mu.Unlock()
	return lit.SessionSigs{"http://node": {Sig: "s", Algo: "ed25519"}}, nil
}

func (f *fakeNetwork) ExecuteJS(_ context.Context, req lit.ExecuteRequest) (*lit.ExecuteResponse, error) {
	f.mu.Lock()
	f.executions = append(f.executions, req)
	f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.response, nil
}

func testWallet(t *testing.T) *wallet.Signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	w, err := wallet.FromECDSA(key)
	require.NoError(t, err)
	return w
}

func newRunner(t *testing.T, network *fakeNetwork, w Wallet) *Runner {
	t.Helper()
	r, err := New(Config{SchemaID: 42}, network, w, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

const mixedCaseToken = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

func TestRunSubmitted(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xblockhash",
		response: &lit.ExecuteResponse{
			Success:  true,
			Response: `{"hash":"0xfeed","nonce":"7","chainId":84532}`,
			Nodes:    3,
		},
	}
	w := testWallet(t)
	r := newRunner(t, network, w)

	res, err := r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(mixedCaseToken), res.Address)
	assert.Same(t, network.response, res.Response)
	assert.True(t, res.Submitted())
	assert.False(t, res.Empty())

	out, err := res.Outcome()
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", out.Submission.Hash)
	assert.EqualValues(t, 7, out.Submission.Nonce)

	require.Len(t, network.sessionReqs, 1)
	req := network.sessionReqs[0]
	assert.Equal(t, []lit.ResourceAbilityRequest{{
		Resource: "lit-litaction://*",
		Ability:  "lit-action-execution",
	}}, req.ResourceAbilityRequests)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), req.Expiration, time.Minute)

	require.Len(t, network.executions, 1)
	exec := network.executions[0]
	assert.Equal(t, action.Source, exec.Code)
	assert.NotContains(t, exec.Code, strings.ToLower(mixedCaseToken))
	params, ok := exec.JSParams["params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, strings.ToLower(mixedCaseToken), params["address"])
	assert.Equal(t, "https://ape.store/api/token/base/"+strings.ToLower(mixedCaseToken), params["metadataUrl"])
	assert.Equal(t, "42", params["schemaId"])
	assert.Equal(t, "sig4", params["sigName"])
}

func TestRunEmpty(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xblockhash",
		response:  &lit.ExecuteResponse{Success: true, Response: ""},
	}
	r := newRunner(t, network, testWallet(t))

	res, err := r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.False(t, res.Submitted())
	assert.False(t, res.Failed())
}

func TestRunFailureIsData(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xblockhash",
		response: &lit.ExecuteResponse{
			Success:  true,
			Response: `{"reason":"nonce too low","code":"NONCE_EXPIRED"}`,
		},
	}
	r := newRunner(t, network, testWallet(t))

	res, err := r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	out, err := res.Outcome()
	require.NoError(t, err)
	assert.Equal(t, "NONCE_EXPIRED: nonce too low", out.Failure.Error())
}

func TestRunExecutionFailed(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xblockhash",
		response:  &lit.ExecuteResponse{Success: false, Error: "action timed out after 30s", Nodes: 3},
	}
	r := newRunner(t, network, testWallet(t))

	res, err := r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	assert.True(t, res.Failed())
	assert.False(t, res.Empty())
	assert.False(t, res.Submitted())

	out, err := res.Outcome()
	require.NoError(t, err)
	assert.Equal(t, ExecutionFailed, out.Failure.Code)
	assert.Equal(t, "action timed out after 30s", out.Failure.Reason)

	res.Response.Error = ""
	out, err = res.Outcome()
	require.NoError(t, err)
	assert.Equal(t, action.OutcomeFailed, out.Outcome)
	assert.NotEmpty(t, out.Failure.Reason)
}

type recordedMetrics struct {
	metrics.NoOp
	mu        sync.Mutex
	errors    []string
	completed []string
}

func (m *recordedMetrics) RecordTaskError(_ context.Context, errType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, errType)
}

func (m *recordedMetrics) RecordTaskComplete(_ context.Context, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, outcome)
}

func TestRunRecordsErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		network *fakeNetwork
		address string
		want    string
	}{
		{
			name:    "invalid address",
			network: &fakeNetwork{},
			address: "0x123",
			want:    "invalid_input",
		},
		{
			name:    "wallet rejected",
			network: &fakeNetwork{sessionErr: &lit.KindError{Kind: lit.ErrAuth, Op: "sign session authorization", Err: errors.New("key locked")}},
			address: mixedCaseToken,
			want:    "auth",
		},
		{
			name:    "nodes unreachable",
			network: &fakeNetwork{blockhash: "0xb", execErr: &lit.KindError{Kind: lit.ErrTransport, Err: errors.New("connection reset")}},
			address: mixedCaseToken,
			want:    "transport",
		},
		{
			name:    "authentication in message only",
			network: &fakeNetwork{blockhash: "0xb", execErr: errors.New("node said: authentication required")},
			address: mixedCaseToken,
			want:    "unknown",
		},
		{
			name:    "split responses",
			network: &fakeNetwork{blockhash: "0xb", execErr: errors.Wrap(lit.ErrConsensus, "2 distinct responses")},
			address: mixedCaseToken,
			want:    "consensus",
		},
		{
			name:    "deadline",
			network: &fakeNetwork{blockhash: "0xb", execErr: errors.Wrap(context.DeadlineExceeded, "execute")},
			address: mixedCaseToken,
			want:    "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordedMetrics{}
			r, err := New(Config{SchemaID: 42}, tt.network, testWallet(t), WithMetrics(rec))
			require.NoError(t, err)

			_, err = r.Run(context.Background(), tt.address)
			require.Error(t, err)
			assert.Equal(t, []string{tt.want}, rec.errors)
			assert.Empty(t, rec.completed)
		})
	}
}

func TestRunRecordsFailedExecution(t *testing.T) {
	rec := &recordedMetrics{}
	network := &fakeNetwork{blockhash: "0xb", response: &lit.ExecuteResponse{Error: "boom"}}
	r, err := New(Config{SchemaID: 42}, network, testWallet(t), WithMetrics(rec))
	require.NoError(t, err)

	_, err = r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"failed"}, rec.completed)
	assert.Empty(t, rec.errors)
}

func TestRunInvalidAddress(t *testing.T) {
	network := &fakeNetwork{}
	r := newRunner(t, network, testWallet(t))

	for _, addr := range []string{"", "0x123", "abcdef0123456789abcdef0123456789abcdef0123", "0xZZcdef0123456789abcdef0123456789abcdef01"} {
		_, err := r.Run(context.Background(), addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, addr)
	}
	assert.Empty(t, network.sessionReqs)
	assert.Empty(t, network.executions)
}

func TestRunAuthFailure(t *testing.T) {
	network := &fakeNetwork{sessionErr: errors.Wrap(lit.ErrAuth, "wallet rejected")}
	r := newRunner(t, network, testWallet(t))

	_, err := r.Run(context.Background(), mixedCaseToken)
	assert.ErrorIs(t, err, lit.ErrAuth)
	assert.Empty(t, network.executions)
}

func TestRunTransportFailure(t *testing.T) {
	network := &fakeNetwork{blockhash: "0xb", execErr: errors.Wrap(lit.ErrTransport, "1 of 3 nodes answered")}
	r := newRunner(t, network, testWallet(t))

	_, err := r.Run(context.Background(), mixedCaseToken)
	assert.ErrorIs(t, err, lit.ErrTransport)
	assert.NotErrorIs(t, err, lit.ErrAuth)
}

func TestRunConcurrent(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xb",
		response:  &lit.ExecuteResponse{Success: true, Response: `{"hash":"0x1"}`},
	}
	r := newRunner(t, network, testWallet(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), mixedCaseToken)
			assert.NoError(t, err)
			assert.True(t, res.Submitted())
		}()
	}
	wg.Wait()
	assert.Len(t, network.executions, 8)
}

func TestWalletAuthSignsSignInMessage(t *testing.T) {
	network := &fakeNetwork{
		blockhash: "0xblockhash",
		response:  &lit.ExecuteResponse{Success: true},
	}
	w := testWallet(t)
	r := newRunner(t, network, w)

	_, err := r.Run(context.Background(), mixedCaseToken)
	require.NoError(t, err)
	require.Len(t, network.authSigs, 1)
	sig := network.authSigs[0]

	assert.Equal(t, "web3.eth.personal.sign", sig.DerivedVia)
	assert.Equal(t, w.Address().Hex(), sig.Address)
	assert.Contains(t, sig.SignedMessage, "wants you to sign in with your Ethereum account:\n"+w.Address().Hex())
	assert.Contains(t, sig.SignedMessage, "URI: lit:session:abcd")
	assert.Contains(t, sig.SignedMessage, "Nonce: 0xblockhash")
	assert.Contains(t, sig.SignedMessage, "'Threshold': 'Execution' for 'lit-litaction://*'")

	raw, err := hexutil.Decode(sig.Sig)
	require.NoError(t, err)
	require.Len(t, raw, 65)
	raw[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(sig.SignedMessage)), raw)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), crypto.PubkeyToAddress(*pub))

	lines := strings.Split(sig.SignedMessage, "\n")
	recap := strings.TrimPrefix(lines[len(lines)-1], "- ")
	caps, err := siwe.DecodeRecap(recap)
	require.NoError(t, err)
	assert.Equal(t, []siwe.Capability{{Resource: "lit-litaction://*", Namespace: "Threshold", Name: "Execution"}}, caps)
}

func TestWalletAuthUnsupportedAbility(t *testing.T) {
	a := NewWalletAuth(testWallet(t), &fakeNetwork{blockhash: "0xb"})
	_, err := a.SignAuth(context.Background(), lit.AuthCallbackParams{
		ResourceAbilityRequests: []lit.ResourceAbilityRequest{{Resource: "lit-pkp://*", Ability: "pkp-signing"}},
		Expiration:              time.Now().Add(time.Hour),
		URI:                     "lit:session:ab",
	})
	assert.ErrorContains(t, err, "unsupported ability")
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{}, &fakeNetwork{}, testWallet(t))
	assert.ErrorContains(t, err, "schema id")

	_, err = New(Config{SchemaID: 1, RegistryAddress: "0x12"}, &fakeNetwork{}, testWallet(t))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = New(Config{SchemaID: 1}, nil, testWallet(t))
	assert.Error(t, err)

	_, err = New(Config{SchemaID: 1}, &fakeNetwork{}, nil)
	assert.ErrorContains(t, err, "auth signer")
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	var order []int
	r, err := New(Config{SchemaID: 1}, &fakeNetwork{}, testWallet(t),
		WithCloser(func() error { order = append(order, 1); return nil }),
		WithCloser(func() error { order = append(order, 2); return errors.New("boom") }))
	require.NoError(t, err)

	assert.EqualError(t, r.Close(), "boom")
	assert.Equal(t, []int{2, 1}, order)
	assert.NoError(t, r.Close())
}
