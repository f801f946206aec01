package multisig

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

type ActionType string

const (
	ActionTransfer               ActionType = "Transfer"
	ActionCreateAccount          ActionType = "CreateAccount"
	ActionDeployContract         ActionType = "DeployContract"
	ActionAddKey                 ActionType = "AddKey"
	ActionDeleteKey              ActionType = "DeleteKey"
	ActionFunctionCall           ActionType = "FunctionCall"
	ActionSetNumConfirmations    ActionType = "SetNumConfirmations"
	ActionSetActiveRequestsLimit ActionType = "SetActiveRequestsLimit"
)

const (
	MethodAddRequest           = "add_request"
	MethodAddRequestAndConfirm = "add_request_and_confirm"
	MethodConfirm              = "confirm"
	MethodDeleteRequest        = "delete_request"
)

const (
	tgas           uint64 = 1_000_000_000_000
	requestGas            = 100 * tgas
	confirmGas            = 300 * tgas
	defaultCallGas        = 100 * tgas
)

var ErrInvalidRequest = errors.New("invalid multisig request")

type KeyPermission struct {
	Allowance   *string  `json:"allowance"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

// RequestAction is one action of a request in the contract's JSON form.
// Amounts are decimal strings, args and code are base64.
type RequestAction struct {
	Type                ActionType     `json:"type"`
	Amount              string         `json:"amount,omitempty"`
	Code                string         `json:"code,omitempty"`
	PublicKey           string         `json:"public_key,omitempty"`
	Permission          *KeyPermission `json:"permission,omitempty"`
	MethodName          string         `json:"method_name,omitempty"`
	Args                string         `json:"args,omitempty"`
	Deposit             string         `json:"deposit,omitempty"`
	Gas                 string         `json:"gas,omitempty"`
	NumConfirmations    uint32         `json:"num_confirmations,omitempty"`
	ActiveRequestsLimit uint32         `json:"active_requests_limit,omitempty"`
}

type Request struct {
	ReceiverID chain.AccountID `json:"receiver_id"`
	Actions    []RequestAction `json:"actions"`
}

// FunctionCallAction builds a request action calling method with JSON args.
func FunctionCallAction(method string, args any, deposit *uint256.Int, gas uint64) (RequestAction, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return RequestAction{}, errors.Wrap(err, "encoding function call args")
	}
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	if gas == 0 {
		gas = defaultCallGas
	}
	return RequestAction{
		Type:       ActionFunctionCall,
		MethodName: method,
		Args:       base64.StdEncoding.EncodeToString(raw),
		Deposit:    deposit.Dec(),
		Gas:        strconv.FormatUint(gas, 10),
	}, nil
}

// ArgsJSON decodes the base64 args of a FunctionCall action.
func (a RequestAction) ArgsJSON() (map[string]any, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Args)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, "args are not base64")
	}
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, "args are not a JSON object")
	}
	return args, nil
}

// FromAction converts a chain action into its request form. Stake and
// DeleteAccount have no request form.
func FromAction(a chain.Action) (RequestAction, error) {
	switch a.Kind {
	case chain.ActionTransfer:
		return RequestAction{Type: ActionTransfer, Amount: decimal(a.Deposit)}, nil
	case chain.ActionCreateAccount:
		return RequestAction{Type: ActionCreateAccount}, nil
	case chain.ActionDeployContract:
		return RequestAction{Type: ActionDeployContract, Code: base64.StdEncoding.EncodeToString(a.Code)}, nil
	case chain.ActionFunctionCall:
		return RequestAction{
			Type:       ActionFunctionCall,
			MethodName: a.MethodName,
			Args:       base64.StdEncoding.EncodeToString(a.Args),
			Deposit:    decimal(a.Deposit),
			Gas:        strconv.FormatUint(a.Gas, 10),
		}, nil
	case chain.ActionAddKey:
		ra := RequestAction{Type: ActionAddKey, PublicKey: a.PublicKey.String()}
		if fc := a.AccessKey.FunctionCall; fc != nil {
			ra.Permission = &KeyPermission{ReceiverID: fc.ReceiverID, MethodNames: fc.MethodNames}
			if fc.Allowance != nil {
				allowance := fc.Allowance.Dec()
				ra.Permission.Allowance = &allowance
			}
		}
		return ra, nil
	case chain.ActionDeleteKey:
		return RequestAction{Type: ActionDeleteKey, PublicKey: a.PublicKey.String()}, nil
	default:
		return RequestAction{}, errors.Wrapf(ErrInvalidRequest, "%s cannot be requested", a.Kind)
	}
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// Validate checks that every action carries the fields its type needs.
func (r Request) Validate() error {
	if r.ReceiverID == "" {
		return errors.Wrap(ErrInvalidRequest, "missing receiver_id")
	}
	if len(r.Actions) == 0 {
		return errors.Wrap(ErrInvalidRequest, "request has no actions")
	}
	for i, a := range r.Actions {
		var err error
		switch a.Type {
		case ActionTransfer:
			if strings.TrimSpace(a.Amount) == "" {
				err = errors.New("missing amount")
			} else {
				_, err = chain.ParseU128(a.Amount)
			}
		case ActionFunctionCall:
			if a.MethodName == "" {
				err = errors.New("missing method_name")
			} else if _, err = base64.StdEncoding.DecodeString(a.Args); err == nil {
				if _, err = chain.ParseU128(a.Deposit); err == nil && a.Gas != "" {
					_, err = strconv.ParseUint(a.Gas, 10, 64)
				}
			}
		case ActionAddKey:
			_, err = chain.ParsePublicKey(a.PublicKey)
			if err == nil && a.Permission != nil && a.Permission.Allowance != nil {
				_, err = chain.ParseU128(*a.Permission.Allowance)
			}
		case ActionDeleteKey:
			_, err = chain.ParsePublicKey(a.PublicKey)
		case ActionDeployContract:
			_, err = base64.StdEncoding.DecodeString(a.Code)
		case ActionCreateAccount, ActionSetNumConfirmations, ActionSetActiveRequestsLimit:
		default:
			err = errors.Errorf("unknown action type %q", a.Type)
		}
		if err != nil {
			return errors.Wrapf(ErrInvalidRequest, "action %d: %v", i, err)
		}
	}
	return nil
}

type requestArgs struct {
	Request Request `json:"request"`
}

type requestIDArgs struct {
	RequestID uint64 `json:"request_id"`
}

// EncodeAddRequest wraps request in a FunctionCall to add_request, or to
// add_request_and_confirm when confirm is set.
func EncodeAddRequest(request Request, confirm bool) (chain.Action, error) {
	if err := request.Validate(); err != nil {
		return chain.Action{}, err
	}
	args, err := json.Marshal(requestArgs{Request: request})
	if err != nil {
		return chain.Action{}, errors.Wrap(err, "encoding request")
	}
	if confirm {
		return chain.FunctionCall(MethodAddRequestAndConfirm, args, confirmGas, nil), nil
	}
	return chain.FunctionCall(MethodAddRequest, args, requestGas, nil), nil
}

// DecodeAddRequest reverses EncodeAddRequest.
func DecodeAddRequest(action chain.Action) (*Request, error) {
	if action.Kind != chain.ActionFunctionCall ||
		(action.MethodName != MethodAddRequest && action.MethodName != MethodAddRequestAndConfirm) {
		return nil, errors.Wrapf(ErrInvalidRequest, "%s %s is not a request", action.Kind, action.MethodName)
	}
	var args requestArgs
	if err := json.Unmarshal(action.Args, &args); err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}
	return &args.Request, nil
}

func EncodeConfirm(requestID uint64) chain.Action {
	args, _ := json.Marshal(requestIDArgs{RequestID: requestID})
	return chain.FunctionCall(MethodConfirm, args, confirmGas, nil)
}

func EncodeDeleteRequest(requestID uint64) chain.Action {
	args, _ := json.Marshal(requestIDArgs{RequestID: requestID})
	return chain.FunctionCall(MethodDeleteRequest, args, requestGas, nil)
}
