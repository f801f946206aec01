package multisig

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

// Explanation is the human readable form of one request action.
type Explanation struct {
	Type        ActionType `json:"type"`
	MethodName  string     `json:"methodName,omitempty"`
	Description string     `json:"description"`
	Generic     bool       `json:"generic,omitempty"`
}

type tokenMetadata struct {
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type explainFunc func(ctx context.Context, e *Explainer, receiverID chain.AccountID, args map[string]any) (string, error)

// methodExplanations covers lockup, staking pool and fungible token methods.
var methodExplanations = map[string]explainFunc{
	"transfer": func(_ context.Context, _ *Explainer, _ chain.AccountID, args map[string]any) (string, error) {
		amount, err := nearArg(args, "amount")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Transfer %s NEAR from lockup to %s", amount, stringArg(args, "receiver_id")), nil
	},
	"terminate_vesting":               constant("Terminate vesting"),
	"termination_prepare_to_withdraw": constant("Prepare to withdraw terminated tokens"),
	"termination_withdraw": func(_ context.Context, _ *Explainer, _ chain.AccountID, args map[string]any) (string, error) {
		return "Withdraw terminated tokens to " + stringArg(args, "receiver_id"), nil
	},
	"select_staking_pool": func(_ context.Context, _ *Explainer, _ chain.AccountID, args map[string]any) (string, error) {
		return "Select staking pool " + stringArg(args, "staking_pool_account_id"), nil
	},
	"unselect_staking_pool":          constant("Unselect staking pool"),
	"deposit_to_staking_pool":        amountExplanation("Deposit %s NEAR to staking pool"),
	"deposit_and_stake":              amountExplanation("Deposit and stake %s NEAR"),
	"stake":                          amountExplanation("Stake %s NEAR"),
	"unstake":                        amountExplanation("Unstake %s NEAR"),
	"unstake_all":                    constant("Unstake all tokens"),
	"withdraw_from_staking_pool":     amountExplanation("Withdraw %s NEAR from staking pool"),
	"withdraw_all_from_staking_pool": constant("Withdraw all tokens from staking pool"),
	"refresh_staking_pool_balance":   constant("Refresh staking pool balance"),
	"check_transfers_vote":           constant("Check transfers vote"),
	"add_full_access_key": func(_ context.Context, _ *Explainer, _ chain.AccountID, args map[string]any) (string, error) {
		return "Add full access key " + stringArg(args, "new_public_key") + " to lockup", nil
	},
	"storage_deposit": func(_ context.Context, _ *Explainer, receiverID chain.AccountID, args map[string]any) (string, error) {
		account := stringArg(args, "account_id")
		if account == "" {
			account = "the signer"
		}
		return fmt.Sprintf("Register %s with %s", account, receiverID), nil
	},
	"ft_transfer": func(ctx context.Context, e *Explainer, receiverID chain.AccountID, args map[string]any) (string, error) {
		meta, err := e.tokenMetadata(ctx, receiverID)
		if err != nil {
			return "", err
		}
		amount, err := chain.ParseAmount(stringArg(args, "amount"))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Transfer %s %s to %s", chain.FormatAmount(amount, meta.Decimals), meta.Symbol, stringArg(args, "receiver_id")), nil
	},
}

func constant(text string) explainFunc {
	return func(context.Context, *Explainer, chain.AccountID, map[string]any) (string, error) {
		return text, nil
	}
}

func amountExplanation(format string) explainFunc {
	return func(_ context.Context, _ *Explainer, _ chain.AccountID, args map[string]any) (string, error) {
		amount, err := nearArg(args, "amount")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(format, amount), nil
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func nearArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key].(string)
	if !ok {
		return "", errors.Errorf("missing %s", key)
	}
	amount, err := chain.ParseAmount(raw)
	if err != nil {
		return "", err
	}
	return chain.FormatNear(amount), nil
}

// Explainer renders request actions. Token metadata is cached per contract.
type Explainer struct {
	caller Caller
	cache  *lru.Cache
}

func NewExplainer(caller Caller, cacheSize int) (*Explainer, error) {
	if cacheSize <= 0 {
		cacheSize = 128
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "creating token metadata cache")
	}
	return &Explainer{caller: caller, cache: cache}, nil
}

func (e *Explainer) tokenMetadata(ctx context.Context, contractID chain.AccountID) (tokenMetadata, error) {
	if cached, ok := e.cache.Get(contractID); ok {
		return cached.(tokenMetadata), nil
	}
	var meta tokenMetadata
	if err := e.caller.CallFunctionJSON(ctx, contractID, "ft_metadata", nil, &meta); err != nil {
		return tokenMetadata{}, err
	}
	e.cache.Add(contractID, meta)
	return meta, nil
}

// ExplainRequest explains every action concurrently. A failed row falls back
// to a generic description and never affects the other rows.
func (e *Explainer) ExplainRequest(ctx context.Context, request *Request) []Explanation {
	out := make([]Explanation, len(request.Actions))
	var g errgroup.Group
	for i, action := range request.Actions {
		i, action := i, action
		g.Go(func() error {
			explanation, err := e.Explain(ctx, request.ReceiverID, action)
			if err != nil {
				log.Warn().Err(err).
					Str("receiver_id", request.ReceiverID).
					Str("method_name", action.MethodName).
					Msg("Failed to explain request action")
				explanation = genericExplanation(request.ReceiverID, action)
			}
			out[i] = explanation
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Explainer) Explain(ctx context.Context, receiverID chain.AccountID, action RequestAction) (Explanation, error) {
	ex := Explanation{Type: action.Type, MethodName: action.MethodName}
	switch action.Type {
	case ActionTransfer:
		amount, err := chain.ParseAmount(action.Amount)
		if err != nil {
			return ex, err
		}
		ex.Description = fmt.Sprintf("Send %s NEAR to %s", chain.FormatNear(amount), receiverID)
	case ActionCreateAccount:
		ex.Description = "Create account " + receiverID
	case ActionDeployContract:
		ex.Description = "Deploy contract to " + receiverID
	case ActionAddKey:
		if action.Permission == nil {
			ex.Description = fmt.Sprintf("Add full access key %s to %s", action.PublicKey, receiverID)
		} else {
			methods := "any method"
			if len(action.Permission.MethodNames) > 0 {
				methods = strings.Join(action.Permission.MethodNames, ", ")
			}
			ex.Description = fmt.Sprintf("Add key %s to %s limited to %s on %s",
				action.PublicKey, receiverID, methods, action.Permission.ReceiverID)
		}
	case ActionDeleteKey:
		ex.Description = fmt.Sprintf("Delete key %s from %s", action.PublicKey, receiverID)
	case ActionSetNumConfirmations:
		ex.Description = fmt.Sprintf("Require %d confirmations", action.NumConfirmations)
	case ActionSetActiveRequestsLimit:
		ex.Description = fmt.Sprintf("Allow %d active requests per key", action.ActiveRequestsLimit)
	case ActionFunctionCall:
		explain, ok := methodExplanations[action.MethodName]
		if !ok {
			return genericExplanation(receiverID, action), nil
		}
		args, err := action.ArgsJSON()
		if err != nil {
			return ex, err
		}
		description, err := explain(ctx, e, receiverID, args)
		if err != nil {
			return ex, errors.Wrapf(err, "explaining %s", action.MethodName)
		}
		ex.Description = description
	default:
		return genericExplanation(receiverID, action), nil
	}
	return ex, nil
}

func genericExplanation(receiverID chain.AccountID, action RequestAction) Explanation {
	ex := Explanation{Type: action.Type, MethodName: action.MethodName, Generic: true}
	if action.Type == ActionFunctionCall {
		ex.Description = fmt.Sprintf("Call %s on %s", action.MethodName, receiverID)
	} else {
		ex.Description = fmt.Sprintf("%s on %s", action.Type, receiverID)
	}
	return ex
}
