package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/chat"
	"github.com/labtrace/labtrace/pkg/insight"
	"github.com/labtrace/labtrace/pkg/store"
)

func TestMapServiceError_ValidationErrorIsBadRequest(t *testing.T) {
	err := apierr.NewValidationError("text", "is required")
	he := mapServiceError(err)
	assert.Equal(t, 400, he.Code)
}

func TestMapServiceError_NotFoundVariantsAre404(t *testing.T) {
	for _, err := range []error{apierr.ErrNotFound, store.ErrNotFound, chat.ErrPatientNotFound, insight.ErrNoData} {
		he := mapServiceError(err)
		assert.Equal(t, 404, he.Code, "expected 404 for %v", err)
	}
}

func TestMapServiceError_BusyVariantsAre409(t *testing.T) {
	for _, err := range []error{apierr.ErrBusy, chat.ErrSessionBusy} {
		he := mapServiceError(err)
		assert.Equal(t, 409, he.Code, "expected 409 for %v", err)
	}
}

func TestMapServiceError_ForbiddenVariantsAre403(t *testing.T) {
	for _, err := range []error{apierr.ErrForbidden, chat.ErrForbidden} {
		he := mapServiceError(err)
		assert.Equal(t, 403, he.Code, "expected 403 for %v", err)
	}
}

func TestMapServiceError_UnknownErrorIs500(t *testing.T) {
	he := mapServiceError(errors.New("boom"))
	assert.Equal(t, 500, he.Code)
}
