package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportbot/internal/guardrails"
)

type recordingRunner struct {
	events []guardrails.Event
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, event guardrails.Event) error {
	r.events = append(r.events, event)
	return r.err
}

const secret = "hush"

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func deliver(t *testing.T, s *Server, eventType string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewReader(body))
	req.Header.Set("X-GitHub-Event", eventType)
	req.Header.Set("X-Hub-Signature-256", signature)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhook_IssueOpened(t *testing.T) {
	runner := &recordingRunner{}
	s := NewServer("127.0.0.1", 0, secret, runner)

	body := []byte(`{
		"action": "opened",
		"issue": {"number": 42, "title": "crash", "body": "it dies", "user": {"login": "alice"}},
		"repository": {"full_name": "acme/widgets"}
	}`)

	rec := deliver(t, s, "issues", body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, runner.events, 1)
	ev := runner.events[0]
	assert.Equal(t, guardrails.EventIssueOpened, ev.Kind)
	assert.Equal(t, 42, ev.IssueNumber)
	assert.Equal(t, "alice", ev.Author)
	assert.Equal(t, "it dies", ev.Body)
}

func TestHandleWebhook_CommentCreated(t *testing.T) {
	runner := &recordingRunner{}
	s := NewServer("127.0.0.1", 0, secret, runner)

	body := []byte(`{
		"action": "created",
		"issue": {"number": 42, "user": {"login": "alice"}},
		"comment": {"id": 77, "body": "/stop", "user": {"login": "bob"}},
		"repository": {"full_name": "acme/widgets"}
	}`)

	rec := deliver(t, s, "issue_comment", body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, runner.events, 1)
	ev := runner.events[0]
	assert.Equal(t, guardrails.EventCommentCreated, ev.Kind)
	assert.Equal(t, "bob", ev.Author)
	assert.Equal(t, "alice", ev.IssueAuthor)
	assert.Equal(t, int64(77), ev.CommentID)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	runner := &recordingRunner{}
	s := NewServer("127.0.0.1", 0, secret, runner)

	body := []byte(`{"action": "opened"}`)
	rec := deliver(t, s, "issues", body, "sha256=deadbeef")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, runner.events)
}

func TestHandleWebhook_IgnoredActions(t *testing.T) {
	runner := &recordingRunner{}
	s := NewServer("127.0.0.1", 0, secret, runner)

	for _, payload := range []string{
		`{"action": "edited", "issue": {"number": 1}}`,
		`{"action": "deleted", "comment": {"id": 2}}`,
	} {
		body := []byte(payload)
		rec := deliver(t, s, "issues", body, sign(body))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, runner.events, "edits and deletions must not trigger processing")

	// Unknown event type is acknowledged too
	body := []byte(`{"action": "created"}`)
	rec := deliver(t, s, "pull_request", body, sign(body))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, runner.events)
}

func TestHandleWebhook_RunnerFailure(t *testing.T) {
	runner := &recordingRunner{err: assert.AnError}
	s := NewServer("127.0.0.1", 0, secret, runner)

	body := []byte(`{
		"action": "opened",
		"issue": {"number": 42, "user": {"login": "alice"}},
		"repository": {"full_name": "acme/widgets"}
	}`)

	rec := deliver(t, s, "issues", body, sign(body))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	s := NewServer("127.0.0.1", 0, secret, &recordingRunner{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
