package session_test

import (
	"testing"

	"nutrimood/internal/session"
	"nutrimood/internal/session/sessiontest"
)

func TestMemoryStore(t *testing.T) {
	sessiontest.Run(t, func(t *testing.T, maxHistory int) session.Store {
		return session.NewMemoryStore(maxHistory)
	})
}
