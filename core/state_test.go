package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
		ok   bool
	}{
		{StateDisconnected, EventConnected, StateConnected, true},
		{StateConnected, EventConnected, StateConnected, true},
		{StateAuthenticated, EventConnected, StateAuthenticated, false},

		{StateConnected, EventVerified, StateAuthenticated, true},
		{StateDisconnected, EventVerified, StateDisconnected, false},
		{StateAuthenticated, EventVerified, StateAuthenticated, false},

		{StateAuthenticated, EventSignedOut, StateConnected, true},
		{StateConnected, EventSignedOut, StateConnected, false},
		{StateAuthenticated, EventInvalidated, StateConnected, true},
		{StateDisconnected, EventInvalidated, StateDisconnected, false},

		{StateDisconnected, EventAgentDisconnected, StateDisconnected, true},
		{StateConnected, EventAgentDisconnected, StateDisconnected, true},
		{StateAuthenticated, EventAgentDisconnected, StateDisconnected, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.ev.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidTransition)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.Equal(t, "event(9)", Event(9).String())
}
