package engineerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexkernel/datalogcore/internal/engineerrors"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		engineerrors.ErrUnstratifiableNegation,
		engineerrors.ErrUnsafeRule,
		engineerrors.ErrArityMismatch,
		engineerrors.ErrReservedSymbol,
		engineerrors.ErrNotSafe,
		engineerrors.ErrUnknownStrategy,
	}
	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			require.False(t, errors.Is(a, b), "sentinels must not alias one another")
		}
	}
}

func TestWrappedSentinelStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("rule %d: %w", 3, engineerrors.ErrUnsafeRule)
	require.True(t, errors.Is(wrapped, engineerrors.ErrUnsafeRule))
	require.False(t, errors.Is(wrapped, engineerrors.ErrArityMismatch))
}

func TestDoubleWrappedSentinelStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("program: %w", fmt.Errorf("symbol foo: %w", engineerrors.ErrReservedSymbol))
	require.True(t, errors.Is(wrapped, engineerrors.ErrReservedSymbol))
}
