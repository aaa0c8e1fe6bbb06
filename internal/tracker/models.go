// Package tracker is the HTTP client for the issue tracker. It covers the
// handful of endpoints triage needs: reading an issue and its comment thread,
// posting and updating comments, labels, assignees, and the two evidence
// lookups (issue search and repository file content).
package tracker

import "time"

// User is the author of an issue or comment.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"`
}

// Label is a tracker label.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Issue is a support issue as the tracker reports it.
type Issue struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	User      User      `json:"user"`
	Labels    []Label   `json:"labels,omitempty"`
	Assignees []User    `json:"assignees,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	HTMLURL   string    `json:"html_url,omitempty"`
}

// Comment is one comment in an issue thread.
type Comment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SearchResult is the response of the issue search endpoint.
type SearchResult struct {
	TotalCount int     `json:"total_count"`
	Items      []Issue `json:"items"`
}

// FileContent is the response of the repository contents endpoint.
type FileContent struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Size     int    `json:"size"`
}
