package lockup

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/borsh"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/rpc"
)

const day = uint64(24 * time.Hour)

func u64(v uint64) *uint64 { return &v }

func encodeState(s *State) []byte {
	w := borsh.NewWriter().
		WriteString(s.Owner).
		WriteU128(s.LockupAmount).
		WriteU128(s.TerminationWithdrawn).
		WriteU64(s.LockupDuration).
		WriteOptionU64(s.ReleaseDuration).
		WriteOptionU64(s.LockupTimestamp)
	if s.Transfers.Enabled {
		w.WriteU8(0).WriteU64(s.Transfers.TransfersTimestamp)
	} else {
		w.WriteU8(1).WriteString(s.Transfers.PollAccountID)
	}
	w.WriteU8(uint8(s.Vesting.Kind))
	switch s.Vesting.Kind {
	case VestingHash:
		w.WriteBytes(s.Vesting.Hash)
	case VestingSchedule:
		w.WriteU64(s.Vesting.Schedule.Start).WriteU64(s.Vesting.Schedule.Cliff).WriteU64(s.Vesting.Schedule.End)
	case VestingTerminating:
		w.WriteU128(s.Vesting.UnvestedAmount).WriteU8(uint8(s.Vesting.TerminationStatus))
	}
	w.WriteString(s.WhitelistAccountID)
	if s.Staking == nil {
		w.WriteU8(0)
	} else {
		w.WriteU8(1).WriteString(s.Staking.PoolAccountID).WriteU8(uint8(s.Staking.Status)).WriteU128(s.Staking.DepositAmount)
	}
	w.WriteOptionString(s.FoundationAccountID)
	return w.Bytes()
}

func baseState(amount uint64) *State {
	return &State{
		Owner:                "owner.near",
		LockupAmount:         uint256.NewInt(amount),
		TerminationWithdrawn: new(uint256.Int),
		Transfers:            TransfersInformation{Enabled: true, TransfersTimestamp: UpgradeTimestamp},
		WhitelistAccountID:   "whitelist.near",
	}
}

func TestDecodeStateAllFields(t *testing.T) {
	foundation := "foundation.near"
	want := baseState(5000)
	want.TerminationWithdrawn = uint256.NewInt(10)
	want.LockupDuration = 3 * day
	want.ReleaseDuration = u64(365 * day)
	want.LockupTimestamp = u64(UpgradeTimestamp + day)
	want.Transfers = TransfersInformation{PollAccountID: "vote.near"}
	want.Vesting = VestingInformation{Kind: VestingTerminating, UnvestedAmount: uint256.NewInt(700), TerminationStatus: ReadyToWithdraw}
	want.Staking = &StakingInformation{PoolAccountID: "pool.near", Status: StakingBusy, DepositAmount: uint256.NewInt(40)}
	want.FoundationAccountID = &foundation

	got, err := DecodeState(encodeState(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeStateScheduleAndHash(t *testing.T) {
	scheduled := baseState(1)
	scheduled.Vesting = VestingInformation{Kind: VestingSchedule, Schedule: Schedule{Start: 1, Cliff: 2, End: 3}}
	got, err := DecodeState(encodeState(scheduled))
	require.NoError(t, err)
	assert.Equal(t, Schedule{Start: 1, Cliff: 2, End: 3}, got.Vesting.Schedule)
	assert.Nil(t, got.Staking)
	assert.Nil(t, got.FoundationAccountID)

	hashed := baseState(1)
	hashed.Vesting = VestingInformation{Kind: VestingHash, Hash: []byte{9, 9, 9}}
	got, err = DecodeState(encodeState(hashed))
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9}, got.Vesting.Hash)
}

func TestDecodeStateErrors(t *testing.T) {
	raw := encodeState(baseState(1))

	_, err := DecodeState(raw[:len(raw)-3])
	assert.ErrorIs(t, err, ErrStateDecode)

	_, err = DecodeState(append(append([]byte(nil), raw...), 0xff))
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
	assert.ErrorIs(t, err, ErrStateDecode)

	s := baseState(1)
	s.Vesting.Kind = 4
	_, err = DecodeState(encodeState(s))
	assert.ErrorIs(t, err, ErrStateDecode)
}

func TestLockedAmountWithoutSchedules(t *testing.T) {
	s := baseState(1000)
	s.LockupDuration = 30 * day

	now := UpgradeTimestamp + 10*day
	locked := s.LockedAmount(now)
	assert.Equal(t, uint64(1000), locked.Uint64())
	assert.Equal(t, uint64(500), LiquidAmount(uint256.NewInt(1500), locked).Uint64())
	assert.Equal(t, uint64(1000), s.LockedAmount(UpgradeTimestamp-1).Uint64())

	assert.True(t, s.LockedAmount(UpgradeTimestamp+31*day).IsZero())
	assert.True(t, LiquidAmount(uint256.NewInt(10), uint256.NewInt(1000)).IsZero())
}

func TestUnvestedAmountScenario(t *testing.T) {
	t0 := UpgradeTimestamp + 10*day
	s := baseState(1200)
	s.Vesting = VestingInformation{Kind: VestingSchedule, Schedule: Schedule{Start: t0, Cliff: t0 + 30*day, End: t0 + 120*day}}

	assert.Equal(t, uint64(800), s.UnvestedAmount(t0+60*day).Uint64())
	assert.Equal(t, uint64(800), s.LockedAmount(t0+60*day).Uint64())
	assert.Equal(t, uint64(1200), s.UnvestedAmount(t0+30*day-1).Uint64())
	assert.True(t, s.UnvestedAmount(t0+120*day).IsZero())
}

func TestUnreleasedAmountEndpoints(t *testing.T) {
	s := baseState(1000)
	s.LockupDuration = day
	s.ReleaseDuration = u64(100 * day)
	start := s.LockupStart()
	assert.Equal(t, UpgradeTimestamp+day, start)

	assert.Equal(t, uint64(1000), s.UnreleasedAmount(start).Uint64())
	assert.Equal(t, uint64(500), s.UnreleasedAmount(start+50*day).Uint64())
	assert.Equal(t, uint64(250), s.UnreleasedAmount(start+75*day).Uint64())
	assert.True(t, s.UnreleasedAmount(start+100*day).IsZero())
}

func TestLockedAmountIsMonotonic(t *testing.T) {
	s := baseState(1_000_000)
	s.LockupDuration = 10 * day
	s.ReleaseDuration = u64(200 * day)
	t0 := UpgradeTimestamp + 5*day
	s.Vesting = VestingInformation{Kind: VestingSchedule, Schedule: Schedule{Start: t0, Cliff: t0 + 60*day, End: t0 + 300*day}}

	previous := s.LockedAmount(UpgradeTimestamp - day)
	for now := UpgradeTimestamp - day; now < UpgradeTimestamp+400*day; now += day / 3 {
		locked := s.LockedAmount(now)
		assert.False(t, locked.Gt(previous), "locked amount increased at %d", now)
		previous = locked
	}
	assert.True(t, previous.IsZero())
}

func TestTerminatedVestingUsesStoredAmount(t *testing.T) {
	s := baseState(1000)
	s.TerminationWithdrawn = uint256.NewInt(2000)
	s.Vesting = VestingInformation{Kind: VestingTerminating, UnvestedAmount: uint256.NewInt(321)}

	now := UpgradeTimestamp + day
	assert.Equal(t, uint64(321), s.UnvestedAmount(now).Uint64())
	assert.Equal(t, uint64(321), s.LockedAmount(now).Uint64())
	assert.True(t, s.LockedAmount(UpgradeTimestamp).IsZero())
}

func TestBrokenTimestampIgnoresStoredTimestamp(t *testing.T) {
	s := baseState(1000)
	s.LockupDuration = day
	s.LockupTimestamp = u64(UpgradeTimestamp + 365*day)
	assert.Equal(t, UpgradeTimestamp+365*day, s.LockupStart())

	s.HasBrokenTimestamp = HasBrokenTimestamp("3kVY9qcVRoW3B5498SMX6R3rtSLiCdmBzKs7zcnzDJ7Q")
	require.True(t, s.HasBrokenTimestamp)
	assert.Equal(t, UpgradeTimestamp+day, s.LockupStart())
	assert.True(t, s.LockedAmount(UpgradeTimestamp+2*day).IsZero())
	assert.False(t, HasBrokenTimestamp("11111111111111111111111111111111"))
}

func privateState(owner string, salt []byte, schedule Schedule) *State {
	s := baseState(1200)
	s.Owner = owner
	s.Vesting = VestingInformation{Kind: VestingHash, Hash: HashSchedule(schedule, salt)}
	return s
}

func TestFindPrivateSchedule(t *testing.T) {
	guess := ScheduleGuess{
		Start: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		Cliff: time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	offset := 3*time.Hour + 30*time.Minute
	actual := Schedule{
		Start: uint64(guess.Start.Add(offset).UnixNano()),
		Cliff: uint64(guess.Cliff.Add(offset).UnixNano()),
		End:   uint64(guess.End.Add(offset).UnixNano()),
	}

	named := privateState("owner.near", ScheduleSalt("token", []byte("owner.near")), actual)
	found, err := FindPrivateSchedule(named, guess, "token")
	require.NoError(t, err)
	assert.Equal(t, actual, found)

	_, err = FindPrivateSchedule(named, guess, "wrong")
	assert.ErrorIs(t, err, ErrPrivateScheduleNotFound)

	implicitOwner := strings.Repeat("ab", 32)
	keyBytes, _ := hex.DecodeString(implicitOwner)
	implicit := privateState(implicitOwner, ScheduleSalt("token", keyBytes), actual)
	found, err = FindPrivateSchedule(implicit, guess, "token")
	require.NoError(t, err)
	assert.Equal(t, actual, found)

	_, err = FindPrivateSchedule(baseState(1), guess, "token")
	assert.ErrorIs(t, err, ErrNotPrivateSchedule)
}

type fakeChain struct {
	state     []byte
	codeHash  string
	amount    string
	timestamp uint64
	poolErr   error
	staked    string
}

func (f *fakeChain) ViewState(_ context.Context, accountID string, prefix []byte) ([]rpc.StateItem, error) {
	if accountID != "lockup.near" {
		return nil, errors.Wrap(rpc.ErrUnknownAccount, accountID)
	}
	return []rpc.StateItem{{Key: prefix, Value: f.state}}, nil
}

func (f *fakeChain) ViewAccount(context.Context, string) (*rpc.AccountView, error) {
	return &rpc.AccountView{Amount: f.amount, CodeHash: f.codeHash}, nil
}

func (f *fakeChain) FinalBlock(context.Context) (*rpc.BlockView, error) {
	return &rpc.BlockView{Header: rpc.BlockHeader{Timestamp: f.timestamp}}, nil
}

func (f *fakeChain) CallFunctionJSON(_ context.Context, accountID, method string, _ any, out any) error {
	if f.poolErr != nil {
		return f.poolErr
	}
	*(out.(*string)) = "300"
	if f.staked != "" {
		*(out.(*string)) = f.staked
	}
	return nil
}

func TestServiceBreakdown(t *testing.T) {
	s := baseState(1000)
	s.LockupDuration = 30 * day
	s.Staking = &StakingInformation{PoolAccountID: "pool.near", DepositAmount: uint256.NewInt(250)}
	fc := &fakeChain{state: encodeState(s), amount: "900", timestamp: UpgradeTimestamp + day}

	breakdown, err := NewService(fc).Breakdown(context.Background(), "lockup.near")
	require.NoError(t, err)
	assert.Equal(t, "owner.near", breakdown.OwnerAccountID)
	assert.Equal(t, "pool.near", breakdown.StakingPoolAccountID)
	assert.Equal(t, "1200", breakdown.TotalBalance)
	assert.Equal(t, "1000", breakdown.LockedAmount)
	assert.Equal(t, "200", breakdown.LiquidAmount)
	assert.Equal(t, "none", breakdown.Vesting)

	fc.poolErr = errors.New("pool down")
	breakdown, err = NewService(fc).Breakdown(context.Background(), "lockup.near")
	require.NoError(t, err)
	assert.Equal(t, "250", breakdown.StakedBalance)
}

func TestServiceBreakdown_UnparsablePoolBalance(t *testing.T) {
	var logs bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&logs)
	t.Cleanup(func() { log.Logger = previous })

	s := baseState(1000)
	s.Staking = &StakingInformation{PoolAccountID: "pool.near", DepositAmount: uint256.NewInt(250)}
	fc := &fakeChain{state: encodeState(s), amount: "900", timestamp: UpgradeTimestamp + day, staked: "lots"}

	breakdown, err := NewService(fc).Breakdown(context.Background(), "lockup.near")
	require.NoError(t, err)
	assert.Equal(t, "250", breakdown.StakedBalance)
	assert.Contains(t, logs.String(), `invalid amount \"lots\"`)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := &fakeChain{state: encodeState(baseState(1000)), amount: "1500", timestamp: UpgradeTimestamp - 1}
	router := gin.New()
	RegisterRoutes(router.Group("/wallet-api"), NewService(fc))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet-api/lockup/lockup.near", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liquidAmount":"500"`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wallet-api/lockup/missing.near", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	body := strings.NewReader(`{"start":"2021-01-01","cliff":"2022-01-01","end":"2025-01-01","authToken":"t"}`)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallet-api/lockup/lockup.near/vesting", body))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/wallet-api/lockup/lockup.near/vesting", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
