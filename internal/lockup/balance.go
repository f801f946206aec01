package lockup

import (
	"github.com/holiman/uint256"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

// UpgradeTimestamp is the protocol upgrade that enabled transfers, in ns.
const UpgradeTimestamp uint64 = 1602614338293769340

// Contract code hashes that stored a lockup timestamp the balance math must
// ignore.
var brokenTimestampCodeHashes = map[string]bool{
	"3kVY9qcVRoW3B5498SMX6R3rtSLiCdmBzKs7zcnzDJ7Q": true,
	"DiC9bKCqUHqoYqUXovAnqugiuntHWnM3cAjQHRyd2awq": true,
}

func HasBrokenTimestamp(codeHash string) bool {
	return brokenTimestampCodeHashes[codeHash]
}

func saturatingAdd(a, b uint64) uint64 {
	if a > ^uint64(0)-b {
		return ^uint64(0)
	}
	return a + b
}

// LockupStart is when the lockup period ends and release begins.
func (s *State) LockupStart() uint64 {
	var stored uint64
	if s.LockupTimestamp != nil {
		stored = *s.LockupTimestamp
	}
	if s.HasBrokenTimestamp {
		stored = UpgradeTimestamp
	}
	return max(saturatingAdd(UpgradeTimestamp, s.LockupDuration), stored)
}

// mulDiv is a*num/den on 256 bits; a is at most 128 bits so it cannot
// overflow.
func mulDiv(a *uint256.Int, num, den uint64) *uint256.Int {
	out := new(uint256.Int).Mul(a, uint256.NewInt(num))
	return out.Div(out, uint256.NewInt(den))
}

func (s *State) UnreleasedAmount(now uint64) *uint256.Int {
	if s.ReleaseDuration == nil || *s.ReleaseDuration == 0 {
		return new(uint256.Int)
	}
	start := s.LockupStart()
	end := saturatingAdd(start, *s.ReleaseDuration)
	switch {
	case now >= end:
		return new(uint256.Int)
	case now <= start:
		return new(uint256.Int).Set(s.LockupAmount)
	default:
		return mulDiv(s.LockupAmount, end-now, *s.ReleaseDuration)
	}
}

// UnvestedAmount interpolates linearly from the cliff, where the full amount
// is still unvested, to the end. An unresolved private schedule counts as
// zero; resolve it with FindPrivateSchedule first.
func (s *State) UnvestedAmount(now uint64) *uint256.Int {
	switch s.Vesting.Kind {
	case VestingTerminating:
		return new(uint256.Int).Set(s.Vesting.UnvestedAmount)
	case VestingSchedule:
		return scheduleUnvested(s.LockupAmount, s.Vesting.Schedule, now)
	default:
		return new(uint256.Int)
	}
}

func scheduleUnvested(amount *uint256.Int, schedule Schedule, now uint64) *uint256.Int {
	switch {
	case now < schedule.Cliff:
		return new(uint256.Int).Set(amount)
	case now >= schedule.End:
		return new(uint256.Int)
	default:
		return mulDiv(amount, schedule.End-now, schedule.End-schedule.Cliff)
	}
}

// LockedAmount never goes below zero and never increases with now for a
// fixed, non terminated schedule.
func (s *State) LockedAmount(now uint64) *uint256.Int {
	if now <= UpgradeTimestamp || now < s.LockupStart() {
		return chain.SaturatingSub(s.LockupAmount, s.TerminationWithdrawn)
	}
	unreleased := chain.SaturatingSub(s.UnreleasedAmount(now), s.TerminationWithdrawn)
	return chain.Max(unreleased, s.UnvestedAmount(now))
}

func LiquidAmount(total, locked *uint256.Int) *uint256.Int {
	return chain.SaturatingSub(total, locked)
}
