package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/guardrails"
	"github.com/supportbot/internal/webhookutils"
)

// webhookPayload covers the fields shared by the issues and issue_comment
// event shapes.
type webhookPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		User   struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"issue"`
	Comment struct {
		ID   int64  `json:"id"`
		Body string `json:"body"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"comment"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// handleWebhook verifies and parses one tracker delivery, then runs the
// pipeline synchronously. The tracker's delivery timeout is generous enough
// for a full pass; a failed run returns 500 so the delivery shows as failed.
func (s *Server) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	signature := webhookutils.HeaderValue(c.Request().Header, "X-Hub-Signature-256")
	if !webhookutils.VerifySignature(body, signature, s.webhookSecret) {
		log.Warn().Str("remote", c.RealIP()).Msg("Webhook signature verification failed")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	eventType := webhookutils.HeaderValue(c.Request().Header, "X-GitHub-Event")
	event, ok, err := parseEvent(eventType, body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if !ok {
		// Unsupported event or action: acknowledged, nothing to do
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	if err := s.runner.Run(c.Request().Context(), event); err != nil {
		log.Error().Err(err).Int("issue", event.IssueNumber).Msg("Event processing failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "processing failed"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "processed"})
}

// parseEvent maps a delivery to a pipeline event. Only freshly opened issues
// and freshly created comments trigger processing; edits and deletions do not.
func parseEvent(eventType string, body []byte) (guardrails.Event, bool, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return guardrails.Event{}, false, err
	}

	now := time.Now().UTC()

	switch eventType {
	case "issues":
		if payload.Action != "opened" {
			return guardrails.Event{}, false, nil
		}
		return guardrails.Event{
			Kind:        guardrails.EventIssueOpened,
			Repo:        payload.Repository.FullName,
			IssueNumber: payload.Issue.Number,
			IssueAuthor: payload.Issue.User.Login,
			Author:      payload.Issue.User.Login,
			Body:        payload.Issue.Body,
			CreatedAt:   now,
		}, true, nil

	case "issue_comment":
		if payload.Action != "created" {
			return guardrails.Event{}, false, nil
		}
		return guardrails.Event{
			Kind:        guardrails.EventCommentCreated,
			Repo:        payload.Repository.FullName,
			IssueNumber: payload.Issue.Number,
			IssueAuthor: payload.Issue.User.Login,
			Author:      payload.Comment.User.Login,
			Body:        payload.Comment.Body,
			CommentID:   payload.Comment.ID,
			CreatedAt:   now,
		}, true, nil
	}

	return guardrails.Event{}, false, nil
}
