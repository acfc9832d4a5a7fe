package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountValidBounds(t *testing.T) {
	require.False(t, NewAmount(0).Valid())
	require.False(t, NewAmount(-1).Valid())
	require.True(t, NewAmount(1).Valid())

	max, err := ParseAmount(MaxAmount.String())
	require.NoError(t, err)
	require.True(t, max.Valid())

	over := max.MulPow10(1)
	require.False(t, over.Valid())
}

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("170141183460469231731687303715884105727") // 2^127 - 1
	require.NoError(t, err)
	require.Equal(t, 1, a.Sign())

	_, err = ParseAmount("170141183460469231731687303715884105728") // 2^127
	require.Error(t, err)

	_, err = ParseAmount("12.5")
	require.Error(t, err)
	_, err = ParseAmount("")
	require.Error(t, err)
}

func TestAmountJSONDecimalString(t *testing.T) {
	big := NewAmount(9_000_000_000).MulPow10(12)

	raw, err := json.Marshal(big)
	require.NoError(t, err)
	require.Equal(t, `"9000000000000000000000"`, string(raw))

	var back Amount
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Zero(t, big.Cmp(back))

	// numeric encodings are accepted for compatibility
	var fromNumber Amount
	require.NoError(t, json.Unmarshal([]byte(`42`), &fromNumber))
	v, ok := fromNumber.Int64()
	require.True(t, ok)
	require.Equal(t, int64(42), v)
}

func TestErrorMatchingByCode(t *testing.T) {
	wrapped := fmt.Errorf("create escrow: %w", ErrInvalidAmount)
	require.ErrorIs(t, wrapped, ErrInvalidAmount)
	require.NotErrorIs(t, wrapped, ErrEscrowExpired)

	require.Equal(t, ErrorCode(13), ErrReentrancyDetected.Code)
	require.Equal(t, ErrorCode(1), ErrInsufficientBalance.Code)

	var typed *Error
	require.True(t, errors.As(wrapped, &typed))
	require.Equal(t, CodeInvalidAmount, typed.Code)
}
