package chain

import (
	"encoding/hex"
	"regexp"
	"strings"
)

type AccountID = string

var implicitAccountPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsImplicitAccount reports whether id is a 64 char lowercase hex account id.
func IsImplicitAccount(id AccountID) bool {
	return implicitAccountPattern.MatchString(id)
}

// ImplicitAccountBytes returns the decoded key bytes of an implicit account.
func ImplicitAccountBytes(id AccountID) ([]byte, bool) {
	if !IsImplicitAccount(id) {
		return nil, false
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return nil, false
	}
	return b, true
}

func ImplicitAccountID(pk PublicKey) AccountID {
	return hex.EncodeToString(pk.Data[:])
}

func NormalizeAccountID(id string) AccountID {
	return strings.ToLower(strings.TrimSpace(id))
}
