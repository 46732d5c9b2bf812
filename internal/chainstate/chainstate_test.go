// See the file LICENSE for licensing terms.

package chainstate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextBaseFee(t *testing.T) {
	require.Equal(t, uint64(100), NextBaseFee(100, 4, 8))
	require.Equal(t, uint64(112), NextBaseFee(100, 8, 8))
	require.Equal(t, uint64(88), NextBaseFee(100, 0, 8))
}
