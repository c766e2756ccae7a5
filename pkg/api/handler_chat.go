package api

import (
	"errors"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/labtrace/labtrace/pkg/apierr"
	"github.com/labtrace/labtrace/pkg/chat"
	"github.com/labtrace/labtrace/pkg/insight"
)

type createChatSessionRequest struct {
	PatientID string `json:"patient_id"`
}

// createChatSessionHandler starts a session, optionally pre-scoped to a
// patient. When a patient is given and has lab history, a fresh
// onboarding insight is generated and folded into the session's first
// turn.
func (s *Server) createChatSessionHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()

	var req createChatSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	var onboarding *chat.OnboardingContext
	if req.PatientID != "" {
		if err := s.verifyPatientOwnership(c.Request().Context(), user.ID, req.PatientID); err != nil {
			return mapServiceError(err)
		}

		result, err := s.light.Generate(c.Request().Context(), req.PatientID)
		switch {
		case err == nil:
			onboarding = &chat.OnboardingContext{
				Insight:        result.Finding + " " + result.Action + " " + result.Tracking,
				ParameterTable: strings.Join(result.FollowUps, "\n"),
			}
		case errors.Is(err, insight.ErrNoData):
			// no history yet, e.g. a patient created but never ingested — a
			// plain session with no onboarding context is fine.
		default:
			return mapServiceError(err)
		}
	}

	sess, err := s.orch.CreateSession(c.Request().Context(), user.ID, req.PatientID, onboarding)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

type postChatMessageRequest struct {
	Text string `json:"text"`
}

// postChatMessageHandler appends a user message and dispatches the turn
// asynchronously; the caller must already be attached to the session's
// SSE stream to observe the result.
func (s *Server) postChatMessageHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()

	var req postChatMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return mapServiceError(apierr.NewValidationError("text", "is required"))
	}

	if err := s.orch.PostMessage(c.Param("id"), user.ID, req.Text); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// streamChatHandler attaches the caller's connection as the session's SSE
// sink. The handler blocks for the lifetime of the connection.
func (s *Server) streamChatHandler(c *echo.Context) error {
	return s.orch.OpenStream(c.Response(), c.Request(), c.Param("id"))
}

// onboardingInsightHandler returns a fresh onboarding insight for a
// patient on demand, outside the chat-session-creation flow (e.g. a
// dashboard summary card).
func (s *Server) onboardingInsightHandler(c *echo.Context) error {
	user := authFromContext(c).CurrentUser()
	patientID := c.Param("id")

	if err := s.verifyPatientOwnership(c.Request().Context(), user.ID, patientID); err != nil {
		return mapServiceError(err)
	}

	result, err := s.light.Generate(c.Request().Context(), patientID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}
