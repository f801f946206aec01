package multisig

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/utils"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/signer"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/transaction"
)

const maxParallelRows = 4

type SignerResolver interface {
	SignerFor(ctx context.Context, accountID chain.AccountID, pending signer.PendingAction) (signer.Signer, error)
}

type Executor interface {
	Execute(ctx context.Context, s signer.Signer, senderID, receiverID chain.AccountID, actions []chain.Action) (*transaction.OutcomeEvent, error)
}

type Notifier interface {
	Publish(targetTopic string, event any)
}

type PendingRequest struct {
	ID            uint64          `json:"id"`
	ReceiverID    chain.AccountID `json:"receiverId,omitempty"`
	Actions       []RequestAction `json:"actions,omitempty"`
	Explanations  []Explanation   `json:"explanations,omitempty"`
	Confirmations []string        `json:"confirmations"`
	Error         string          `json:"error,omitempty"`
}

type RequestsView struct {
	AccountID        chain.AccountID  `json:"accountId"`
	NumConfirmations uint32           `json:"numConfirmations"`
	Requests         []PendingRequest `json:"requests"`
	ItemCount        int              `json:"itemCount"`
	NextPageToken    int              `json:"nextPageToken,omitempty"`
}

type Service struct {
	caller    Caller
	explainer *Explainer
	signers   SignerResolver
	executor  Executor
	notifier  Notifier
}

func NewService(caller Caller, explainer *Explainer, signers SignerResolver, executor Executor, notifier Notifier) *Service {
	return &Service{caller: caller, explainer: explainer, signers: signers, executor: executor, notifier: notifier}
}

// Requests lists every pending request of accountID with its explanations.
func (s *Service) Requests(ctx context.Context, accountID chain.AccountID) (*RequestsView, error) {
	return s.RequestsPage(ctx, accountID, utils.PageRequest{})
}

// RequestsPage reads only the requests inside page. A request that cannot be
// read is returned with its error instead.
func (s *Service) RequestsPage(ctx context.Context, accountID chain.AccountID, page utils.PageRequest) (*RequestsView, error) {
	contract := NewContract(s.caller, accountID)
	ids, err := contract.ListRequestIDs(ctx)
	if err != nil {
		return nil, err
	}
	numConfirmations, err := contract.GetNumConfirmations(ctx)
	if err != nil {
		return nil, err
	}

	start, end, next := page.Window(len(ids))
	itemCount := len(ids)
	ids = ids[start:end]

	rows := make([]PendingRequest, len(ids))
	var g errgroup.Group
	g.SetLimit(maxParallelRows)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			rows[i] = s.pendingRequest(ctx, contract, id)
			return nil
		})
	}
	_ = g.Wait()

	return &RequestsView{
		AccountID:        accountID,
		NumConfirmations: numConfirmations,
		Requests:         rows,
		ItemCount:        itemCount,
		NextPageToken:    next,
	}, nil
}

func (s *Service) pendingRequest(ctx context.Context, contract *Contract, id uint64) PendingRequest {
	row := PendingRequest{ID: id, Confirmations: []string{}}
	request, err := contract.GetRequest(ctx, id)
	if err != nil {
		log.Warn().Err(err).Uint64("request_id", id).Msg("Failed to read multisig request")
		row.Error = err.Error()
		return row
	}
	row.ReceiverID = request.ReceiverID
	row.Actions = request.Actions
	row.Explanations = s.explainer.ExplainRequest(ctx, request)

	confirmations, err := contract.GetConfirmations(ctx, id)
	if err != nil {
		log.Warn().Err(err).Uint64("request_id", id).Msg("Failed to read request confirmations")
		row.Error = err.Error()
		return row
	}
	row.Confirmations = confirmations
	return row
}

func (s *Service) AddRequest(ctx context.Context, accountID chain.AccountID, request Request, confirm bool) (*transaction.OutcomeEvent, error) {
	action, err := EncodeAddRequest(request, confirm)
	if err != nil {
		return nil, err
	}
	kind := MethodAddRequest
	if confirm {
		kind = MethodAddRequestAndConfirm
	}
	return s.execute(ctx, accountID, signer.PendingAction{Kind: kind, AccountID: accountID}, action)
}

func (s *Service) Confirm(ctx context.Context, accountID chain.AccountID, requestID uint64) (*transaction.OutcomeEvent, error) {
	pending := signer.PendingAction{Kind: MethodConfirm, AccountID: accountID, RequestID: &requestID}
	return s.execute(ctx, accountID, pending, EncodeConfirm(requestID))
}

func (s *Service) DeleteRequest(ctx context.Context, accountID chain.AccountID, requestID uint64) (*transaction.OutcomeEvent, error) {
	pending := signer.PendingAction{Kind: MethodDeleteRequest, AccountID: accountID, RequestID: &requestID}
	return s.execute(ctx, accountID, pending, EncodeDeleteRequest(requestID))
}

// execute signs with a key of the multisig account itself; the contract only
// accepts calls from its own access keys.
func (s *Service) execute(ctx context.Context, accountID chain.AccountID, pending signer.PendingAction, action chain.Action) (*transaction.OutcomeEvent, error) {
	sgn, err := s.signers.SignerFor(ctx, accountID, pending)
	if err != nil {
		return nil, err
	}
	event, err := s.executor.Execute(ctx, sgn, accountID, accountID, []chain.Action{action})
	if err != nil {
		return event, err
	}
	s.requestChanged(pending, []string{event.Hash})
	return event, nil
}

// Resume completes a pending action after the remote wallet returned.
func (s *Service) Resume(res *signer.Resumption) {
	if res.State != signer.StateSigned || res.Pending.AccountID == "" {
		return
	}
	s.requestChanged(res.Pending, res.TransactionHashes)
}

func (s *Service) requestChanged(pending signer.PendingAction, hashes []string) {
	if s.notifier == nil {
		return
	}
	payload := map[string]any{"kind": pending.Kind, "transactionHashes": hashes}
	if pending.RequestID != nil {
		payload["requestId"] = *pending.RequestID
	}
	s.notifier.Publish("accounts/"+pending.AccountID, map[string]any{"type": "REQUEST_CHANGED", "payload": payload})
}
