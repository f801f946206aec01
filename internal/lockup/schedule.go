package lockup

import (
	"bytes"
	"time"

	"github.com/minio/sha256-simd"
	"github.com/pkg/errors"

	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/borsh"
	"github.com/kollektive-hackathon/multisig-wallet-backend/internal/pkg/chain"
)

var (
	ErrPrivateScheduleNotFound = errors.New("private vesting schedule not found: incorrect seed or date range")
	ErrNotPrivateSchedule      = errors.New("lockup has no private vesting schedule")
)

const (
	scheduleSearchRange = 12 * time.Hour
	scheduleSearchStep  = 15 * time.Minute
)

// ScheduleGuess is a schedule known only to calendar precision, as entered by
// a user in an unknown time zone.
type ScheduleGuess struct {
	Start time.Time
	Cliff time.Time
	End   time.Time
}

// HashSchedule is the contract's hash of a schedule with its salt.
func HashSchedule(schedule Schedule, salt []byte) []byte {
	encoded := borsh.NewWriter().
		WriteU64(schedule.Start).
		WriteU64(schedule.Cliff).
		WriteU64(schedule.End).
		WriteBytes(salt).
		Bytes()
	sum := sha256.Sum256(encoded)
	return sum[:]
}

// ScheduleSalt derives the salt from the caller supplied seed and one
// encoding of the owner.
func ScheduleSalt(authToken string, owner []byte) []byte {
	h := sha256.New()
	h.Write([]byte(authToken))
	h.Write(owner)
	return h.Sum(nil)
}

// ownerEncodings returns the named account bytes and, for implicit
// accounts, the decoded key bytes.
func ownerEncodings(owner string) [][]byte {
	encodings := [][]byte{[]byte(owner)}
	if implicit, ok := chain.ImplicitAccountBytes(owner); ok {
		encodings = append(encodings, implicit)
	}
	return encodings
}

func toNanos(t time.Time) uint64 {
	if t.Before(time.Unix(0, 0)) {
		return 0
	}
	return uint64(t.UnixNano())
}

// FindPrivateSchedule brute forces the time zone offset of guess within
// ±12h. The seed is trusted as given.
func FindPrivateSchedule(state *State, guess ScheduleGuess, authToken string) (Schedule, error) {
	if state.Vesting.Kind != VestingHash {
		return Schedule{}, errors.Wrapf(ErrNotPrivateSchedule, "vesting information is %s", state.Vesting.Kind)
	}

	salts := make([][]byte, 0, 2)
	for _, owner := range ownerEncodings(state.Owner) {
		salts = append(salts, ScheduleSalt(authToken, owner))
	}

	for offset := -scheduleSearchRange; offset <= scheduleSearchRange; offset += scheduleSearchStep {
		candidate := Schedule{
			Start: toNanos(guess.Start.Add(offset)),
			Cliff: toNanos(guess.Cliff.Add(offset)),
			End:   toNanos(guess.End.Add(offset)),
		}
		for _, salt := range salts {
			if bytes.Equal(HashSchedule(candidate, salt), state.Vesting.Hash) {
				return candidate, nil
			}
		}
	}
	return Schedule{}, ErrPrivateScheduleNotFound
}
