package eval

import (
	"context"
	"fmt"

	"github.com/supportbot/internal/tracker"
)

// memoryTracker is the in-memory tracker backing scenario replays. Posted
// comments join the thread so state round-trips across events exactly as it
// would through the real API.
type memoryTracker struct {
	issue    *tracker.Issue
	comments []tracker.Comment
	nextID   int64

	posted    []string
	labels    []string
	assignees []string
}

func newMemoryTracker(sc Scenario) *memoryTracker {
	return &memoryTracker{
		issue: &tracker.Issue{
			Number: sc.Issue.Number,
			Title:  sc.Issue.Title,
			Body:   sc.Issue.Body,
			User:   tracker.User{Login: sc.Issue.Author},
			State:  "open",
		},
		nextID: 1000,
	}
}

func (m *memoryTracker) GetIssue(ctx context.Context, number int) (*tracker.Issue, error) {
	if number != m.issue.Number {
		return nil, fmt.Errorf("unknown issue %d", number)
	}
	return m.issue, nil
}

func (m *memoryTracker) GetComments(ctx context.Context, number int) ([]tracker.Comment, error) {
	out := make([]tracker.Comment, len(m.comments))
	copy(out, m.comments)
	return out, nil
}

func (m *memoryTracker) PostComment(ctx context.Context, number int, body string) (int64, error) {
	m.nextID++
	m.posted = append(m.posted, body)
	m.comments = append(m.comments, tracker.Comment{
		ID:   m.nextID,
		Body: body,
		User: tracker.User{Login: "supportbot"},
	})
	return m.nextID, nil
}

func (m *memoryTracker) UpdateComment(ctx context.Context, commentID int64, body string) error {
	for i := range m.comments {
		if m.comments[i].ID == commentID {
			m.comments[i].Body = body
			return nil
		}
	}
	return fmt.Errorf("unknown comment %d", commentID)
}

func (m *memoryTracker) AddLabels(ctx context.Context, number int, labels []string) error {
	m.labels = append(m.labels, labels...)
	return nil
}

func (m *memoryTracker) AddAssignees(ctx context.Context, number int, assignees []string) error {
	m.assignees = append(m.assignees, assignees...)
	return nil
}

func (m *memoryTracker) SearchIssues(ctx context.Context, query string) (*tracker.SearchResult, error) {
	return &tracker.SearchResult{}, nil
}

func (m *memoryTracker) GetFileContent(ctx context.Context, path string) (string, error) {
	return "", fmt.Errorf("file not found")
}
