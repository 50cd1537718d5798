package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "terminatedduetotimeout", NormalizeName("  Terminated due\tto Timeout\n"))
}

func TestFoldKey(t *testing.T) {
	require.Equal(t, FoldKey("Apple"), FoldKey("apple"))
	require.Equal(t, FoldKey("Straße"), FoldKey("STRASSE"))
	require.Less(t, FoldKey("apple"), FoldKey("Banana"))
}

func TestEqualFold(t *testing.T) {
	require.True(t, EqualFold(" Accepted", "accepted "))
	require.False(t, EqualFold("Accepted", "Wrong Answer"))
}
