package thread

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"threadlink/internal/domain"
)

func TestPermissions(t *testing.T) {
	tests := []struct {
		name     string
		perms    Permissions
		pin      bool
		lock     bool
		del      bool
		edit     bool
		moderate bool
		badge    bool
	}{
		{
			name:  "anonymous",
			perms: Permissions{Member: true, CommunityOwner: true},
			badge: true,
		},
		{
			name:  "member only",
			perms: Permissions{SignedIn: true, Member: true},
		},
		{
			name:     "creator",
			perms:    Permissions{SignedIn: true, Member: true, Creator: true},
			del:      true,
			edit:     true,
			moderate: true,
		},
		{
			name:     "channel owner",
			perms:    Permissions{SignedIn: true, Member: true, ChannelOwner: true},
			lock:     true,
			del:      true,
			moderate: true,
			badge:    true,
		},
		{
			name:     "community owner",
			perms:    Permissions{SignedIn: true, Member: true, CommunityOwner: true},
			pin:      true,
			lock:     true,
			del:      true,
			moderate: true,
			badge:    true,
		},
		{
			name:     "community owner in private channel",
			perms:    Permissions{SignedIn: true, Member: true, CommunityOwner: true, PrivateChannel: true},
			lock:     true,
			del:      true,
			moderate: true,
			badge:    true,
		},
		{
			name:  "owner but not member",
			perms: Permissions{SignedIn: true, ChannelOwner: true},
			badge: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pin, tt.perms.CanPin(), "pin")
			assert.Equal(t, tt.lock, tt.perms.CanLock(), "lock")
			assert.Equal(t, tt.del, tt.perms.CanDelete(), "delete")
			assert.Equal(t, tt.edit, tt.perms.CanEdit(), "edit")
			assert.Equal(t, tt.moderate, tt.perms.ShowModeration(false), "moderation")
			assert.False(t, tt.perms.ShowModeration(true), "moderation while editing")
			assert.Equal(t, tt.badge, tt.perms.ShowAdminBadge(), "badge")
		})
	}
}

func TestCanToggleNotifications(t *testing.T) {
	p := Permissions{SignedIn: true, Member: true}
	assert.True(t, p.CanToggleNotifications(false))
	assert.False(t, p.CanToggleNotifications(true))
	assert.False(t, Permissions{Member: true}.CanToggleNotifications(false))
}

func TestPermissionsFor(t *testing.T) {
	th := domain.Thread{
		ID:        "t1",
		IsCreator: true,
		Channel: domain.Channel{
			IsPrivate:   true,
			Permissions: domain.ChannelPermissions{IsMember: true},
		},
		Community: domain.Community{PinnedThreadID: "t1"},
	}

	p := PermissionsFor(th, &domain.User{ID: "u1"})
	assert.Equal(t, Permissions{
		SignedIn:       true,
		Member:         true,
		Creator:        true,
		PrivateChannel: true,
		Pinned:         true,
	}, p)

	assert.False(t, PermissionsFor(th, nil).SignedIn)
}

func TestDeleteMessage(t *testing.T) {
	th := domain.Thread{
		Channel:   domain.Channel{Name: "general"},
		Community: domain.Community{Name: "Gophers"},
	}

	assert.Contains(t, DeleteMessage(th, Permissions{CommunityOwner: true}), "owner of the Gophers community")
	assert.Contains(t, DeleteMessage(th, Permissions{ChannelOwner: true}), "owner of the general channel")
	assert.Equal(t, "Are you sure you want to delete this thread?",
		DeleteMessage(th, Permissions{CommunityOwner: true, Creator: true}))
}
