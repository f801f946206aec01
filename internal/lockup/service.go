package lockup

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

var stateKey = []byte("STATE")

type Chain interface {
	ViewState(ctx context.Context, accountID string, prefix []byte) ([]rpc.StateItem, error)
	ViewAccount(ctx context.Context, accountID string) (*rpc.AccountView, error)
	FinalBlock(ctx context.Context) (*rpc.BlockView, error)
	CallFunctionJSON(ctx context.Context, accountID, method string, args any, out any) error
}

// Breakdown amounts are decimal yoctoNEAR strings.
type Breakdown struct {
	AccountID            chain.AccountID `json:"accountId"`
	OwnerAccountID       chain.AccountID `json:"ownerAccountId"`
	StakingPoolAccountID string          `json:"stakingPoolAccountId,omitempty"`
	FoundationAccountID  string          `json:"foundationAccountId,omitempty"`
	LockupAmount         string          `json:"lockupAmount"`
	TerminationWithdrawn string          `json:"terminationWithdrawn"`
	TotalBalance         string          `json:"totalBalance"`
	StakedBalance        string          `json:"stakedBalance"`
	LockedAmount         string          `json:"lockedAmount"`
	LiquidAmount         string          `json:"liquidAmount"`
	UnreleasedAmount     string          `json:"unreleasedAmount"`
	UnvestedAmount       string          `json:"unvestedAmount"`
	Vesting              string          `json:"vesting"`
	PrivateSchedule      *Schedule       `json:"privateSchedule,omitempty"`
	TransfersEnabled     bool            `json:"transfersEnabled"`
	HasBrokenTimestamp   bool            `json:"hasBrokenTimestamp"`
	BlockTimestamp       uint64          `json:"blockTimestamp"`
}

type Service struct {
	chain Chain
}

func NewService(chain Chain) *Service {
	return &Service{chain: chain}
}

// State reads and decodes the lockup state at the latest final block.
func (s *Service) State(ctx context.Context, accountID chain.AccountID) (*State, *rpc.AccountView, error) {
	items, err := s.chain.ViewState(ctx, accountID, stateKey)
	if err != nil {
		return nil, nil, err
	}
	var raw []byte
	found := false
	for _, item := range items {
		if string(item.Key) == string(stateKey) {
			raw, found = item.Value, true
			break
		}
	}
	if !found {
		return nil, nil, errors.Wrapf(ErrStateDecode, "%s has no STATE entry", accountID)
	}

	state, err := DecodeState(raw)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decoding lockup state of %s", accountID)
	}

	account, err := s.chain.ViewAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	state.HasBrokenTimestamp = HasBrokenTimestamp(account.CodeHash)

	block, err := s.chain.FinalBlock(ctx)
	if err != nil {
		return nil, nil, err
	}
	state.BlockTimestamp = block.Header.Timestamp
	return state, account, nil
}

func (s *Service) Breakdown(ctx context.Context, accountID chain.AccountID) (*Breakdown, error) {
	state, account, err := s.State(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.breakdown(ctx, accountID, state, account)
}

// ResolvePrivateSchedule finds the hidden schedule and reports the breakdown
// evaluated with it.
func (s *Service) ResolvePrivateSchedule(ctx context.Context, accountID chain.AccountID, guess ScheduleGuess, authToken string) (*Breakdown, error) {
	state, account, err := s.State(ctx, accountID)
	if err != nil {
		return nil, err
	}
	schedule, err := FindPrivateSchedule(state, guess, authToken)
	if err != nil {
		return nil, err
	}
	state.Vesting = VestingInformation{Kind: VestingSchedule, Schedule: schedule}

	breakdown, err := s.breakdown(ctx, accountID, state, account)
	if err != nil {
		return nil, err
	}
	breakdown.Vesting = VestingHash.String()
	breakdown.PrivateSchedule = &schedule
	return breakdown, nil
}

func (s *Service) breakdown(ctx context.Context, accountID chain.AccountID, state *State, account *rpc.AccountView) (*Breakdown, error) {
	now := state.BlockTimestamp
	balance, err := chain.ParseAmount(account.Amount)
	if err != nil {
		return nil, err
	}
	staked := s.stakedBalance(ctx, accountID, state)
	total := new(uint256.Int).Add(balance, staked)
	locked := state.LockedAmount(now)

	b := &Breakdown{
		AccountID:            accountID,
		OwnerAccountID:       state.Owner,
		LockupAmount:         state.LockupAmount.Dec(),
		TerminationWithdrawn: state.TerminationWithdrawn.Dec(),
		TotalBalance:         total.Dec(),
		StakedBalance:        staked.Dec(),
		LockedAmount:         locked.Dec(),
		LiquidAmount:         LiquidAmount(total, locked).Dec(),
		UnreleasedAmount:     state.UnreleasedAmount(now).Dec(),
		UnvestedAmount:       state.UnvestedAmount(now).Dec(),
		Vesting:              state.Vesting.Kind.String(),
		TransfersEnabled:     state.Transfers.Enabled,
		HasBrokenTimestamp:   state.HasBrokenTimestamp,
		BlockTimestamp:       now,
	}
	if state.Staking != nil {
		b.StakingPoolAccountID = state.Staking.PoolAccountID
	}
	if state.FoundationAccountID != nil {
		b.FoundationAccountID = *state.FoundationAccountID
	}
	return b, nil
}

// stakedBalance asks the selected pool; on failure the recorded deposit is
// used instead.
func (s *Service) stakedBalance(ctx context.Context, accountID chain.AccountID, state *State) *uint256.Int {
	if state.Staking == nil {
		return new(uint256.Int)
	}
	var raw string
	err := s.chain.CallFunctionJSON(ctx, state.Staking.PoolAccountID, "get_account_total_balance",
		map[string]string{"account_id": accountID}, &raw)
	if err == nil {
		var staked *uint256.Int
		if staked, err = chain.ParseAmount(raw); err == nil {
			return staked
		}
	}
	log.Warn().Err(err).
		Str("account_id", accountID).
		Str("staking_pool", state.Staking.PoolAccountID).
		Msg("Failed to read staking pool balance, using deposit amount")
	return new(uint256.Int).Set(state.Staking.DepositAmount)
}
