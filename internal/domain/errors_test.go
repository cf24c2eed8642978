package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrDateOutOfWindow, "validation"},
		{Validationf("date is required"), "validation"},
		{ErrNoEligiblePackage, "eligibility"},
		{ErrSlotFull, "conflict"},
		{fmt.Errorf("reserve: %w", ErrDuplicateReservation), "conflict"},
		{ErrSlotNotFound, "not_found"},
		{ErrInvalidCredentials, "unauthorized"},
		{ErrTooManyAttempts, "forbidden"},
		{errors.New("disk I/O error"), "transport"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err))
	}
}

func TestConcreteErrorsKeepMessage(t *testing.T) {
	assert.Equal(t, "conflict: class is full", ErrSlotFull.Error())
	assert.Contains(t, Validationf("bad %s", "date").Error(), "bad date")
}
