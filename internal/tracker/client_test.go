package tracker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseURL: server.URL,
		Repo:    "acme/widgets",
		Auth:    NewTokenAuth("test-token"),
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{Repo: "no-slash", Auth: NewTokenAuth("x")})
	assert.Error(t, err)

	_, err = NewClient(Options{Repo: "a/b"})
	assert.Error(t, err)
}

func TestGetIssue(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/issues/42", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(Issue{
			Number: 42,
			Title:  "App crashes on startup",
			User:   User{Login: "alice"},
			State:  "open",
		})
	}))

	issue, err := client.GetIssue(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "alice", issue.User.Login)
}

func TestGetIssue_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "Not Found"}`, http.StatusNotFound)
	}))

	_, err := client.GetIssue(context.Background(), 999)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGetComments_Pagination(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var comments []Comment
		if page == "1" {
			for i := 0; i < 100; i++ {
				comments = append(comments, Comment{ID: int64(i + 1)})
			}
		} else {
			comments = []Comment{{ID: 101}, {ID: 102}}
		}
		json.NewEncoder(w).Encode(comments)
	}))

	comments, err := client.GetComments(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, comments, 102)
	assert.Equal(t, int64(102), comments[101].ID)
}

func TestPostComment(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/repos/acme/widgets/issues/7/comments", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Thanks for the report.", payload["body"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Comment{ID: 5551})
	}))

	id, err := client.PostComment(context.Background(), 7, "Thanks for the report.")
	require.NoError(t, err)
	assert.Equal(t, int64(5551), id)
}

func TestPostComment_DryRun(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	client, err := NewClient(Options{
		BaseURL: server.URL,
		Repo:    "acme/widgets",
		Auth:    NewTokenAuth("x"),
		DryRun:  true,
	})
	require.NoError(t, err)

	id, err := client.PostComment(context.Background(), 7, "would post this")
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
	assert.Equal(t, 0, requests, "dry run must not hit the API")
}

func TestUpdateComment(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PATCH", r.Method)
		assert.Equal(t, "/repos/acme/widgets/issues/comments/5551", r.URL.Path)
		json.NewEncoder(w).Encode(Comment{ID: 5551})
	}))

	err := client.UpdateComment(context.Background(), 5551, "edited body")
	require.NoError(t, err)
}

func TestAddLabelsAndAssignees(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/assignees") {
			w.WriteHeader(http.StatusCreated)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{})
	}))

	require.NoError(t, client.AddLabels(context.Background(), 3, []string{"triage/escalated"}))
	require.NoError(t, client.AddAssignees(context.Background(), 3, []string{"oncall-bob"}))
	assert.Equal(t, []string{
		"/repos/acme/widgets/issues/3/labels",
		"/repos/acme/widgets/issues/3/assignees",
	}, paths)

	// Empty slices are a no-op, no API call
	before := len(paths)
	require.NoError(t, client.AddLabels(context.Background(), 3, nil))
	require.NoError(t, client.AddAssignees(context.Background(), 3, nil))
	assert.Equal(t, before, len(paths))
}

func TestSearchIssues(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		q := r.URL.Query().Get("q")
		assert.Contains(t, q, "repo:acme/widgets")
		assert.Contains(t, q, "crash on startup")
		json.NewEncoder(w).Encode(SearchResult{
			TotalCount: 1,
			Items:      []Issue{{Number: 12, Title: "crash on startup with v2.1"}},
		})
	}))

	result, err := client.SearchIssues(context.Background(), "crash on startup")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCount)
	assert.Equal(t, 12, result.Items[0].Number)
}

func TestGetFileContent_Base64(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(FileContent{
			Name:     "CHANGELOG.md",
			Encoding: "base64",
			Content:  base64.StdEncoding.EncodeToString([]byte("## v2.1\nfixed the crash")),
		})
	}))

	content, err := client.GetFileContent(context.Background(), "/CHANGELOG.md")
	require.NoError(t, err)
	assert.Contains(t, content, "fixed the crash")
}

func TestAppAuth_CachesInstallationToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	exchanges := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/app/installations/99/access_tokens", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		exchanges++
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"token":      "ghs_installation",
			"expires_at": time.Now().Add(time.Hour).Format(time.RFC3339),
		})
	}))
	defer server.Close()

	auth, err := NewAppAuth("12345", 99, keyPEM, server.URL)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		token, err := auth.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ghs_installation", token)
	}
	assert.Equal(t, 1, exchanges, "token must be cached until expiry")
}

func TestTokenAuth_Empty(t *testing.T) {
	_, err := NewTokenAuth("").Token(context.Background())
	assert.Error(t, err)
}
