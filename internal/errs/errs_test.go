package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"validation", Validation("setVolume", "bad %d", 1), ErrValidation, KindValidation},
		{"not found", NotFound("getStation", "station %d not found", 7), ErrNotFound, KindNotFound},
		{"invalid state", InvalidState("confirmCollection", "nothing pending"), ErrInvalidState, KindInvalidState},
		{"storage", Storage("append", errors.New("disk full")), ErrStorage, KindStorage},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.err, tc.sentinel)
			assert.Equal(t, tc.kind, KindOf(tc.err))

			wrapped := fmt.Errorf("outer: %w", tc.err)
			assert.ErrorIs(t, wrapped, tc.sentinel)
			assert.Equal(t, tc.kind, KindOf(wrapped))
		})
	}
}

func TestKindsDoNotCrossMatch(t *testing.T) {
	err := NotFound("getStation", "station 1 not found")
	assert.NotErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrStorage)
}

func TestStorage(t *testing.T) {
	assert.NoError(t, Storage("op", nil))

	cause := errors.New("connection refused")
	err := Storage("listStations", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "listStations: connection refused", err.Error())

	// Already classified errors keep their kind.
	nf := NotFound("getStation", "missing")
	assert.Equal(t, KindNotFound, KindOf(Storage("tx", nf)))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "station 3 not found", Message(NotFound("getStation", "station 3 not found")))
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Equal(t, "", string(KindOf(errors.New("plain"))))
}
