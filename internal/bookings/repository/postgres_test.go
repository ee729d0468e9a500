package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	bookingserrors "roombook/internal/bookings/errors"
	"roombook/pkg/model"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestBuildWhere(t *testing.T) {
	where, args := buildWhere(model.BookingFilter{})
	assert.Empty(t, where)
	assert.Empty(t, args)

	user := int64(7)
	status := model.StatusPending
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args = buildWhere(model.BookingFilter{UserID: &user, Status: &status, From: &from})

	assert.Equal(t, " WHERE user_id = $1 AND status = $2 AND check_in >= $3", where)
	assert.Equal(t, []any{int64(7), "pending", from}, args)
}

func TestIsExclusionViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pq.Error{Code: "23P01", Message: "conflicting key value violates exclusion constraint"})
	assert.True(t, isExclusionViolation(err))
	assert.False(t, isExclusionViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isExclusionViolation(errors.New("boom")))
}

func TestCheckID(t *testing.T) {
	assert.NoError(t, checkID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.ErrorIs(t, checkID("not-a-uuid"), bookingserrors.ErrInvalidID)
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, []string{"pending", "confirmed"}, statusStrings(model.ActiveStatuses))
}
