package liveevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	hub := NewHub()
	hub.Publish("org-1", LiveEvent{EventType: "visuals_sketch"})

	sub, backlog, err := hub.Subscribe("org-1")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, backlog)
}

func TestSubscribersReceiveOwnOrganizationOnly(t *testing.T) {
	hub := NewHub()
	a, _, err := hub.Subscribe("org-a")
	require.NoError(t, err)
	defer a.Close()
	b, _, err := hub.Subscribe("org-b")
	require.NoError(t, err)
	defer b.Close()

	hub.Publish("org-a", LiveEvent{LedgerEntryID: "1", Status: StatusTracked})

	select {
	case ev := <-a.Events():
		assert.Equal(t, "1", ev.LedgerEntryID)
	default:
		t.Fatal("expected event for org-a")
	}
	select {
	case <-b.Events():
		t.Fatal("org-b must not see org-a events")
	default:
	}

	late, backlog, err := hub.Subscribe("org-a")
	require.NoError(t, err)
	defer late.Close()
	require.Len(t, backlog, 1)
}

func TestCloseRemovesEmptyStream(t *testing.T) {
	hub := NewHub()
	sub, _, err := hub.Subscribe("org-1")
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	hub.mu.RLock()
	_, ok := hub.streams["org-1"]
	hub.mu.RUnlock()
	assert.False(t, ok)
}

func TestSubscribeValidation(t *testing.T) {
	var nilHub *Hub
	_, _, err := nilHub.Subscribe("org-1")
	assert.ErrorIs(t, err, ErrHubUnavailable)

	_, _, err = NewHub().Subscribe("  ")
	assert.ErrorIs(t, err, ErrInvalidOrganization)
}
