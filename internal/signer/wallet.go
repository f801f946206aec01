package signer

import (
	"context"
	"encoding/base64"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

// RedirectRequired is returned when the user has to be sent to the remote
// wallet. The pending action is resumed from the callback query.
type RedirectRequired struct {
	URL string
}

func (r *RedirectRequired) Error() string {
	return "redirect to remote wallet required"
}

// WalletSigner hands signing off to a browser wallet. Sign never returns a
// signature; it always yields a RedirectRequired.
type WalletSigner struct {
	walletURL *url.URL
	publicKey chain.PublicKey
	callback  *url.URL
}

func NewWalletSigner(walletURL string, pk chain.PublicKey, callback *url.URL) (*WalletSigner, error) {
	u, err := url.Parse(walletURL)
	if err != nil || u.Host == "" {
		return nil, errors.Errorf("invalid wallet url %q", walletURL)
	}
	return &WalletSigner{walletURL: u, publicKey: pk, callback: callback}, nil
}

func (s *WalletSigner) GetPublicKey(_ context.Context) (chain.PublicKey, error) {
	if s.publicKey.IsZero() {
		return chain.PublicKey{}, ErrNoKeyAvailable
	}
	return s.publicKey, nil
}

func (s *WalletSigner) Sign(_ context.Context, tx *chain.Transaction) (*chain.SignedTransaction, error) {
	if s.callback == nil {
		return nil, errors.Wrap(ErrProtocolError, "no callback url for remote wallet")
	}
	return nil, &RedirectRequired{URL: s.SignURL(tx)}
}

func (s *WalletSigner) SignURL(txs ...*chain.Transaction) string {
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		encoded = append(encoded, base64.StdEncoding.EncodeToString(tx.Serialize()))
	}
	u := s.walletURL.JoinPath("sign")
	q := url.Values{}
	q.Set("transactions", strings.Join(encoded, ","))
	q.Set("callbackUrl", s.callback.String())
	u.RawQuery = q.Encode()
	return u.String()
}

type Flow string

const (
	FlowConnect Flow = "connect"
	FlowSign    Flow = "sign"
)

type State string

const (
	StateConnected State = "CONNECTED"
	StateSigned    State = "SIGNED"
	StateFailed    State = "FAILED"
)

// PendingAction is the work to resume after a sign round trip.
type PendingAction struct {
	Kind       string
	AccountID  chain.AccountID
	RequestID  *uint64
	ReturnPath string
}

func (p PendingAction) encode(q url.Values) {
	q.Set("pending", p.Kind)
	if p.AccountID != "" {
		q.Set("pending_account", p.AccountID)
	}
	if p.RequestID != nil {
		q.Set("request_id", strconv.FormatUint(*p.RequestID, 10))
	}
	if p.ReturnPath != "" {
		q.Set("return_path", p.ReturnPath)
	}
}

// Resumption is the outcome parsed from a wallet callback.
type Resumption struct {
	Flow              Flow
	FlowID            string
	State             State
	AccountID         chain.AccountID
	PublicKeys        []chain.PublicKey
	TransactionHashes []string
	ErrorCode         string
	ErrorMessage      string
	Pending           PendingAction
}

// SignCallbackURL builds the callback url carrying everything needed to
// resume the pending action.
func SignCallbackURL(callbackBase string, pending PendingAction) (*url.URL, error) {
	u, err := url.Parse(callbackBase)
	if err != nil {
		return nil, errors.Wrap(err, "parse callback url")
	}
	q := u.Query()
	q.Set("flow", string(FlowSign))
	q.Set("flow_id", uuid.NewString())
	pending.encode(q)
	u.RawQuery = q.Encode()
	return u, nil
}

// ConnectURL returns the wallet login url and the correlation id of the flow.
func ConnectURL(walletURL, callbackBase, returnPath string) (string, string, error) {
	wallet, err := url.Parse(walletURL)
	if err != nil || wallet.Host == "" {
		return "", "", errors.Errorf("invalid wallet url %q", walletURL)
	}
	flowID := uuid.NewString()
	callback := func(outcome string) (string, error) {
		u, err := url.Parse(callbackBase)
		if err != nil {
			return "", errors.Wrap(err, "parse callback url")
		}
		q := u.Query()
		q.Set("flow", string(FlowConnect))
		q.Set("flow_id", flowID)
		q.Set("outcome", outcome)
		if returnPath != "" {
			q.Set("return_path", returnPath)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	success, err := callback("success")
	if err != nil {
		return "", "", err
	}
	failure, err := callback("failure")
	if err != nil {
		return "", "", err
	}

	u := wallet.JoinPath("login")
	u.Path += "/"
	q := url.Values{}
	q.Set("success_url", success)
	q.Set("failure_url", failure)
	u.RawQuery = q.Encode()
	return u.String(), flowID, nil
}

// ResumeFromCallback derives the flow state from callback parameters alone.
func ResumeFromCallback(q url.Values) (*Resumption, error) {
	res := &Resumption{
		Flow:         Flow(q.Get("flow")),
		FlowID:       q.Get("flow_id"),
		ErrorCode:    q.Get("errorCode"),
		ErrorMessage: q.Get("errorMessage"),
		Pending: PendingAction{
			Kind:       q.Get("pending"),
			AccountID:  q.Get("pending_account"),
			ReturnPath: q.Get("return_path"),
		},
	}
	if raw := q.Get("request_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrProtocolError, "invalid request_id %q", raw)
		}
		res.Pending.RequestID = &id
	}

	switch res.Flow {
	case FlowConnect:
		return res, resumeConnect(res, q)
	case FlowSign:
		resumeSign(res, q)
		return res, nil
	default:
		return nil, errors.Wrapf(ErrProtocolError, "unknown callback flow %q", res.Flow)
	}
}

func resumeConnect(res *Resumption, q url.Values) error {
	res.AccountID = chain.NormalizeAccountID(q.Get("account_id"))
	if q.Get("outcome") == "failure" || res.ErrorCode != "" || res.AccountID == "" {
		res.State = StateFailed
		if res.ErrorCode == "" {
			res.ErrorCode = "userRejected"
		}
		return nil
	}
	keys := q.Get("all_keys")
	if keys == "" {
		keys = q.Get("public_key")
	}
	for _, raw := range strings.Split(keys, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pk, err := chain.ParsePublicKey(strings.TrimSpace(raw))
		if err != nil {
			return errors.Wrap(ErrProtocolError, err.Error())
		}
		res.PublicKeys = append(res.PublicKeys, pk)
	}
	if len(res.PublicKeys) == 0 {
		return errors.Wrap(ErrProtocolError, "wallet returned no public keys")
	}
	res.State = StateConnected
	return nil
}

func resumeSign(res *Resumption, q url.Values) {
	for _, hash := range strings.Split(q.Get("transactionHashes"), ",") {
		if hash = strings.TrimSpace(hash); hash != "" {
			res.TransactionHashes = append(res.TransactionHashes, hash)
		}
	}
	if res.ErrorCode != "" || len(res.TransactionHashes) == 0 {
		res.State = StateFailed
		if res.ErrorCode == "" {
			res.ErrorCode = "userRejected"
		}
		return
	}
	res.State = StateSigned
}
