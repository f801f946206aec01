package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "wallet_rpc_requests_total",
	Help: "JSON-RPC requests by method and outcome",
}, []string{"method", "outcome"})

var (
	ErrUnknownAccessKey = errors.New("unknown access key")
	ErrUnknownAccount   = errors.New("unknown account")
)

// Error is a JSON-RPC error returned by the node.
type Error struct {
	Name    string          `json:"name"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Cause   struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info"`
	} `json:"cause"`
}

func (e *Error) Error() string {
	if e.Cause.Name != "" {
		return fmt.Sprintf("rpc error %s/%s: %s %s", e.Name, e.Cause.Name, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s %s", e.Code, e.Message, string(e.Data))
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

// Client talks to a single JSON-RPC endpoint. Every call first waits on the
// shared limiter.
type Client struct {
	url     string
	http    *retryablehttp.Client
	limiter *Limiter
	nextID  atomic.Uint64
}

func NewClient(url string, limiter *Limiter) *Client {
	return &Client{
		url:     url,
		http:    NewHTTPClient(30*time.Second, limiter),
		limiter: limiter,
	}
}

func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      fmt.Sprintf("%d", c.nextID.Inc()),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "encoding rpc request")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating rpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		requestsTotal.WithLabelValues(method, "transport_error").Inc()
		return errors.Wrapf(err, "rpc %s", method)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		requestsTotal.WithLabelValues(method, "transport_error").Inc()
		return errors.Wrapf(err, "reading rpc %s response", method)
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		requestsTotal.WithLabelValues(method, "decode_error").Inc()
		return errors.Wrapf(err, "rpc %s returned status %d", method, res.StatusCode)
	}

	if decoded.Error != nil {
		requestsTotal.WithLabelValues(method, "rpc_error").Inc()
		log.Debug().Str("method", method).Str("cause", decoded.Error.Cause.Name).Msg("RPC returned error")
		return classify(decoded.Error)
	}

	requestsTotal.WithLabelValues(method, "ok").Inc()
	if result == nil {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(decoded.Result, result), "decoding rpc %s result", method)
}

func classify(e *Error) error {
	switch e.Cause.Name {
	case "UNKNOWN_ACCESS_KEY":
		return errors.Wrap(ErrUnknownAccessKey, e.Error())
	case "UNKNOWN_ACCOUNT":
		return errors.Wrap(ErrUnknownAccount, e.Error())
	}
	return e
}

// queryError covers nodes that report view failures inside the result body.
type queryError struct {
	Error string `json:"error"`
}

func (c *Client) query(ctx context.Context, params map[string]any, result any) error {
	var raw json.RawMessage
	if err := c.Call(ctx, "query", params, &raw); err != nil {
		return err
	}
	var qe queryError
	if err := json.Unmarshal(raw, &qe); err == nil && qe.Error != "" {
		switch {
		case strings.Contains(qe.Error, "does not exist while viewing") && params["request_type"] == "view_access_key":
			return errors.Wrap(ErrUnknownAccessKey, qe.Error)
		case strings.Contains(qe.Error, "does not exist while viewing"):
			return errors.Wrap(ErrUnknownAccount, qe.Error)
		}
		return errors.New(qe.Error)
	}
	return errors.Wrap(json.Unmarshal(raw, result), "decoding query result")
}

type AccessKeyView struct {
	Nonce       uint64          `json:"nonce"`
	Permission  json.RawMessage `json:"permission"`
	BlockHash   string          `json:"block_hash"`
	BlockHeight uint64          `json:"block_height"`
}

func (c *Client) ViewAccessKey(ctx context.Context, accountID, publicKey string) (*AccessKeyView, error) {
	var view AccessKeyView
	err := c.query(ctx, map[string]any{
		"request_type": "view_access_key",
		"finality":     "final",
		"account_id":   accountID,
		"public_key":   publicKey,
	}, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

type BlockHeader struct {
	Height    uint64 `json:"height"`
	Hash      string `json:"hash"`
	Timestamp uint64 `json:"timestamp"`
}

type BlockView struct {
	Header BlockHeader `json:"header"`
}

func (c *Client) FinalBlock(ctx context.Context) (*BlockView, error) {
	var block BlockView
	if err := c.Call(ctx, "block", map[string]any{"finality": "final"}, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

type AccountView struct {
	Amount       string `json:"amount"`
	Locked       string `json:"locked"`
	CodeHash     string `json:"code_hash"`
	StorageUsage uint64 `json:"storage_usage"`
	BlockHeight  uint64 `json:"block_height"`
	BlockHash    string `json:"block_hash"`
}

func (c *Client) ViewAccount(ctx context.Context, accountID string) (*AccountView, error) {
	var view AccountView
	err := c.query(ctx, map[string]any{
		"request_type": "view_account",
		"finality":     "final",
		"account_id":   accountID,
	}, &view)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

type StateItem struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

type stateView struct {
	Values []StateItem `json:"values"`
}

func (c *Client) ViewState(ctx context.Context, accountID string, prefix []byte) ([]StateItem, error) {
	var view stateView
	err := c.query(ctx, map[string]any{
		"request_type":  "view_state",
		"finality":      "final",
		"account_id":    accountID,
		"prefix_base64": base64.StdEncoding.EncodeToString(prefix),
	}, &view)
	if err != nil {
		return nil, err
	}
	return view.Values, nil
}

// byteArray decodes the node's `[1,2,3]` representation of call results.
type byteArray []byte

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	nums := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return errors.Errorf("byte value %d out of range", v)
		}
		nums[i] = uint8(v)
	}
	*b = nums
	return nil
}

type callResult struct {
	Result byteArray `json:"result"`
	Logs   []string  `json:"logs"`
}

// CallFunction invokes a view method. args is JSON encoded unless it is
// already a []byte.
func (c *Client) CallFunction(ctx context.Context, accountID, method string, args any) ([]byte, error) {
	var argBytes []byte
	switch a := args.(type) {
	case nil:
		argBytes = []byte("{}")
	case []byte:
		argBytes = a
	default:
		encoded, err := json.Marshal(a)
		if err != nil {
			return nil, errors.Wrap(err, "encoding view args")
		}
		argBytes = encoded
	}

	var result callResult
	err := c.query(ctx, map[string]any{
		"request_type": "call_function",
		"finality":     "final",
		"account_id":   accountID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(argBytes),
	}, &result)
	if err != nil {
		return nil, errors.Wrapf(err, "view %s.%s", accountID, method)
	}
	return result.Result, nil
}

// CallFunctionJSON is CallFunction followed by JSON decoding into out.
func (c *Client) CallFunctionJSON(ctx context.Context, accountID, method string, args any, out any) error {
	raw, err := c.CallFunction(ctx, accountID, method, args)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(raw, out), "decoding %s.%s result", accountID, method)
}

type ExecutionOutcome struct {
	Status      json.RawMessage `json:"status"`
	Transaction struct {
		Hash string `json:"hash"`
	} `json:"transaction"`
}

// Failure returns the failure payload of the outcome, if any.
func (o *ExecutionOutcome) Failure() json.RawMessage {
	var status map[string]json.RawMessage
	if err := json.Unmarshal(o.Status, &status); err != nil {
		return nil
	}
	return status["Failure"]
}

func (c *Client) BroadcastTxCommit(ctx context.Context, signedTxBase64 string) (*ExecutionOutcome, error) {
	var outcome ExecutionOutcome
	if err := c.Call(ctx, "broadcast_tx_commit", []string{signedTxBase64}, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}
