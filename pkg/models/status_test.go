package models

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleStatus_RoundTripsThroughText(t *testing.T) {
	for _, status := range AllStatuses {
		parsed, err := ParseArticleStatus(status.String())
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseArticleStatus("reviewed")
	assert.Error(t, err)
}

func TestCanTransition_FollowsLifecycleTable(t *testing.T) {
	allowed := []struct {
		from, to ArticleStatus
	}{
		{StatusPending, StatusSummarizing},
		{StatusSummarizing, StatusSummarized},
		{StatusSummarizing, StatusFailed},
		{StatusFailed, StatusPending},
		{StatusFailed, StatusArchived},
		{StatusSummarized, StatusUnderReview},
		{StatusUnderReview, StatusSummarizing},
		{StatusUnderReview, StatusApproved},
		{StatusUnderReview, StatusArchived},
		{StatusApproved, StatusConverted},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.False(t, CanTransition(StatusPending, StatusSummarized))
	assert.False(t, CanTransition(StatusSummarized, StatusApproved))
	assert.False(t, CanTransition(StatusFailed, StatusSummarizing))
	assert.False(t, CanTransition(StatusSummarizing, StatusPending))
}

func TestTerminalStatuses_HaveNoExits(t *testing.T) {
	for _, terminal := range []ArticleStatus{StatusConverted, StatusArchived} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range AllStatuses {
			assert.False(t, CanTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}

func TestValidateTransition_ReturnsTypedError(t *testing.T) {
	id := uuid.New()

	err := ValidateTransition(id, StatusArchived, StatusPending)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusArchived, te.From)
	assert.Equal(t, StatusPending, te.To)
	assert.Contains(t, err.Error(), "terminal")
	assert.NoError(t, ValidateTransition(id, StatusPending, StatusSummarizing))
}
