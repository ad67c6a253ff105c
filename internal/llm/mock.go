// internal/llm/mock.go
package llm

import (
	"context"
	"regexp"
	"strings"
)

var firstMenuLine = regexp.MustCompile(`(?m)^\d+\. (.+?) \[id: `)

// MockGenerator answers without a network call. It names the first item of
// the menu block so the rest of the pipeline can be exercised end to end.
// Reply overrides the generated text; Err is returned after the first
// FailAfter fragments have been emitted.
type MockGenerator struct {
	Reply     string
	Err       error
	FailAfter int
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Stream(ctx context.Context, req Request, emit func(string) error) error {
	reply := m.Reply
	if reply == "" {
		reply = mockReply(req)
	}

	fragments := strings.SplitAfter(reply, " ")
	for i, fragment := range fragments {
		if m.Err != nil && i >= m.FailAfter {
			return m.Err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(fragment); err != nil {
			return err
		}
	}
	if m.Err != nil {
		return m.Err
	}
	return nil
}

func mockReply(req Request) string {
	switch req.Intent {
	case IntentGreeting:
		return "Hey there! What are you in the mood for today?"
	case IntentFollowUp:
		if m := firstMenuLine.FindStringSubmatch(req.ContextBlock); m != nil {
			return "Good question! " + m[1] + " is a solid pick from what I suggested."
		}
	}
	if m := firstMenuLine.FindStringSubmatch(req.ContextBlock); m != nil {
		return "You should try the " + m[1] + ". It fits what you asked for!"
	}
	return "I couldn't find a match on the menu for that. Want to try something else?"
}
