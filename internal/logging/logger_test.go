package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownFormats(t *testing.T) {
	for _, format := range []string{"", "console", "json"} {
		log, err := New("debug", format)
		require.NoError(t, err, format)
		require.NotNil(t, log)
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "console")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.Error(t, err)
}
