package multisig

import (
	"context"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

type Caller interface {
	CallFunctionJSON(ctx context.Context, accountID, method string, args any, out any) error
}

// Contract reads the view methods of a multisig account.
type Contract struct {
	caller    Caller
	accountID chain.AccountID
}

func NewContract(caller Caller, accountID chain.AccountID) *Contract {
	return &Contract{caller: caller, accountID: accountID}
}

func (c *Contract) ListRequestIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	if err := c.caller.CallFunctionJSON(ctx, c.accountID, "list_request_ids", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Contract) GetRequest(ctx context.Context, requestID uint64) (*Request, error) {
	var request Request
	if err := c.caller.CallFunctionJSON(ctx, c.accountID, "get_request", requestIDArgs{RequestID: requestID}, &request); err != nil {
		return nil, err
	}
	return &request, nil
}

// GetConfirmations returns the public keys that confirmed requestID.
func (c *Contract) GetConfirmations(ctx context.Context, requestID uint64) ([]string, error) {
	var keys []string
	if err := c.caller.CallFunctionJSON(ctx, c.accountID, "get_confirmations", requestIDArgs{RequestID: requestID}, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (c *Contract) GetNumConfirmations(ctx context.Context) (uint32, error) {
	var n uint32
	if err := c.caller.CallFunctionJSON(ctx, c.accountID, "get_num_confirmations", nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}
