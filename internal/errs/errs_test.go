package errs

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	wrapped := fmt.Errorf("recv: %w", ErrCrypto)
	require.Equal(t, KindCrypto, Classify(wrapped))
	require.Equal(t, KindUnknown, Classify(nil))
	require.Equal(t, KindUnknown, Classify(fmt.Errorf("plain")))
	require.Equal(t, "crypto", KindCrypto.String())
}
