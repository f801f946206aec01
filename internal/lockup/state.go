package lockup

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/borsh"
)

// SchemaVersion identifies the field order DecodeState understands. A state
// that does not consume exactly to its end is rejected rather than misread.
const SchemaVersion = 1

var (
	ErrStateDecode       = borsh.ErrStateDecode
	ErrUnsupportedSchema = errors.Wrap(borsh.ErrStateDecode, "unsupported lockup state schema")
)

type TransfersInformation struct {
	Enabled            bool   `json:"enabled"`
	TransfersTimestamp uint64 `json:"transfersTimestamp,omitempty"`
	PollAccountID      string `json:"pollAccountId,omitempty"`
}

type VestingKind uint8

const (
	VestingNone VestingKind = iota
	VestingHash
	VestingSchedule
	VestingTerminating
)

func (k VestingKind) String() string {
	switch k {
	case VestingHash:
		return "hash"
	case VestingSchedule:
		return "schedule"
	case VestingTerminating:
		return "terminating"
	default:
		return "none"
	}
}

type TerminationStatus uint8

const (
	VestingTerminatedWithDeficit TerminationStatus = iota
	UnstakingInProgress
	EverythingUnstaked
	WithdrawingFromStakingPoolInProgress
	ReadyToWithdraw
	WithdrawingFromAccountInProgress
)

// Schedule timestamps are nanoseconds.
type Schedule struct {
	Start uint64 `json:"start"`
	Cliff uint64 `json:"cliff"`
	End   uint64 `json:"end"`
}

type VestingInformation struct {
	Kind              VestingKind
	Hash              []byte
	Schedule          Schedule
	UnvestedAmount    *uint256.Int
	TerminationStatus TerminationStatus
}

type StakingStatus uint8

const (
	StakingIdle StakingStatus = iota
	StakingBusy
)

type StakingInformation struct {
	PoolAccountID string
	Status        StakingStatus
	DepositAmount *uint256.Int
}

// State is a snapshot of a lockup contract. BlockTimestamp and
// HasBrokenTimestamp are filled by the reader, not decoded.
type State struct {
	Owner                string
	LockupAmount         *uint256.Int
	TerminationWithdrawn *uint256.Int
	LockupDuration       uint64
	ReleaseDuration      *uint64
	LockupTimestamp      *uint64
	Transfers            TransfersInformation
	Vesting              VestingInformation
	WhitelistAccountID   string
	Staking              *StakingInformation
	FoundationAccountID  *string

	BlockTimestamp     uint64
	HasBrokenTimestamp bool
}

type decoder struct {
	r   *borsh.Reader
	err error
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	var v uint64
	v, d.err = d.r.ReadU64()
	return v
}

func (d *decoder) u128() *uint256.Int {
	if d.err != nil {
		return new(uint256.Int)
	}
	var v *uint256.Int
	v, d.err = d.r.ReadU128()
	return v
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	var v string
	v, d.err = d.r.ReadString()
	return v
}

func (d *decoder) optionU64() *uint64 {
	if d.err != nil {
		return nil
	}
	var v *uint64
	v, d.err = d.r.ReadOptionU64()
	return v
}

func (d *decoder) optionString() *string {
	if d.err != nil {
		return nil
	}
	var v *string
	v, d.err = d.r.ReadOptionString()
	return v
}

func (d *decoder) option() bool {
	if d.err != nil {
		return false
	}
	var v bool
	v, d.err = d.r.ReadOptionTag()
	return v
}

func (d *decoder) tag(name string, variants uint8) uint8 {
	if d.err != nil {
		return 0
	}
	var v uint8
	v, d.err = d.r.ReadEnumTag(name, variants)
	return v
}

func (d *decoder) bytes() []byte {
	if d.err != nil {
		return nil
	}
	var v []byte
	v, d.err = d.r.ReadBytes()
	return v
}

// DecodeState reads the contract's STATE value in field order.
func DecodeState(raw []byte) (*State, error) {
	d := &decoder{r: borsh.NewReader(raw)}
	s := &State{}

	s.Owner = d.str()
	s.LockupAmount = d.u128()
	s.TerminationWithdrawn = d.u128()
	s.LockupDuration = d.u64()
	s.ReleaseDuration = d.optionU64()
	s.LockupTimestamp = d.optionU64()

	switch d.tag("TransfersInformation", 2) {
	case 0:
		s.Transfers = TransfersInformation{Enabled: true, TransfersTimestamp: d.u64()}
	case 1:
		s.Transfers = TransfersInformation{PollAccountID: d.str()}
	}

	s.Vesting.Kind = VestingKind(d.tag("VestingInformation", 4))
	switch s.Vesting.Kind {
	case VestingHash:
		s.Vesting.Hash = d.bytes()
	case VestingSchedule:
		s.Vesting.Schedule = Schedule{Start: d.u64(), Cliff: d.u64(), End: d.u64()}
	case VestingTerminating:
		s.Vesting.UnvestedAmount = d.u128()
		s.Vesting.TerminationStatus = TerminationStatus(d.tag("TerminationStatus", 6))
	}

	s.WhitelistAccountID = d.str()

	if d.option() {
		staking := &StakingInformation{PoolAccountID: d.str()}
		staking.Status = StakingStatus(d.tag("TransactionStatus", 2))
		staking.DepositAmount = d.u128()
		s.Staking = staking
	}

	s.FoundationAccountID = d.optionString()

	if d.err != nil {
		return nil, d.err
	}
	if rest := d.r.Remaining(); rest != 0 {
		return nil, errors.Wrapf(ErrUnsupportedSchema, "version %d left %d trailing bytes at offset %d", SchemaVersion, rest, d.r.Offset())
	}
	return s, nil
}
