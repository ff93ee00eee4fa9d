package radio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoinLatchAdmitsOneJoin(t *testing.T) {
	var l joinLatch

	require.True(t, l.begin())
	require.False(t, l.begin())

	l.finish(func() {})

	require.True(t, l.begin())
}

func TestJoinLatchReleasedBeforeReport(t *testing.T) {
	var l joinLatch

	require.True(t, l.begin())

	// the retry handler reacting to a failed join must be able to
	// start the next one
	retried := false
	l.finish(func() {
		retried = l.begin()
	})

	require.True(t, retried)
	require.False(t, l.begin())
}
