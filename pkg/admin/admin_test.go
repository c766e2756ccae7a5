package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labtrace/labtrace/pkg/apierr"
)

func TestService_Approve_RejectsRequestWithNoAnalyteChosen(t *testing.T) {
	// Validation runs before any store access, so a zero-value Service
	// (nil store, nil applier) is safe to exercise here.
	s := &Service{}

	err := s.Approve(context.Background(), ApproveRequest{PendingID: "p1", ReviewerID: "r1"})
	require.Error(t, err)

	var verr *apierr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "analyte", verr.Field)
}

func TestApproveRequest_ZeroValueHasNoAnalyteSelected(t *testing.T) {
	var req ApproveRequest
	assert.Empty(t, req.ExistingAnalyteID)
	assert.Empty(t, req.NewAnalyteName)
}
