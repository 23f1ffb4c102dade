package refpkg

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccountNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^ACC\d{10}$`)

	for i := 0; i < 100; i++ {
		n := AccountNumber()
		require.True(t, re.MatchString(n), "unexpected account number %q", n)
	}
}

func TestReferenceNumberFormat(t *testing.T) {
	re := regexp.MustCompile(`^TXN\d{19}$`)

	for i := 0; i < 100; i++ {
		ref := ReferenceNumber()
		require.True(t, re.MatchString(ref), "unexpected reference %q", ref)
	}
}
