// Package refpkg generates external identifiers for accounts and
// transactions. Identifiers are time-prefixed with a random suffix;
// they are collision-resistant, not collision-free, so callers must
// regenerate on a uniqueness conflict.
package refpkg

import (
	"fmt"
	"time"

	"github.com/go-petr/ledger-engine/pkg/randompkg"
)

// AccountNumber returns a new account number.
// Format: ACC + last 6 digits of unix milliseconds + 4 random digits.
func AccountNumber() string {
	ts := time.Now().UnixMilli() % 1_000_000
	return fmt.Sprintf("ACC%06d%s", ts, randompkg.Digits(4))
}

// ReferenceNumber returns a new transaction reference number.
// Format: TXN + unix milliseconds + 6 random digits.
func ReferenceNumber() string {
	return fmt.Sprintf("TXN%d%s", time.Now().UnixMilli(), randompkg.Digits(6))
}
