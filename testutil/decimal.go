package testutil

import (
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var seq atomic.Uint64

func nextSeq() uint64 { return seq.Add(1) }

// AssertDecimal compares decimals by value, ignoring trailing zeros.
func AssertDecimal(t testing.TB, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) bool {
	t.Helper()
	want := decimal.RequireFromString(expected)
	if want.Equal(actual) {
		return true
	}
	return assert.Fail(t, "decimal mismatch: expected "+want.String()+", got "+actual.String(), msgAndArgs...)
}
