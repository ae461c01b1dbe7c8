package thread

import (
	"fmt"

	"threadlink/internal/domain"
)

// Permissions is what the viewer may do with a thread, computed once from
// the thread/viewer relationship.
type Permissions struct {
	SignedIn       bool
	Member         bool
	ChannelOwner   bool
	CommunityOwner bool
	Creator        bool
	PrivateChannel bool
	Pinned         bool
}

// PermissionsFor derives the viewer's permissions. viewer is nil for
// anonymous visitors.
func PermissionsFor(thread domain.Thread, viewer *domain.User) Permissions {
	return Permissions{
		SignedIn:       viewer != nil,
		Member:         thread.Channel.Permissions.IsMember,
		ChannelOwner:   thread.Channel.Permissions.IsOwner,
		CommunityOwner: thread.Community.Permissions.IsOwner,
		Creator:        thread.IsCreator,
		PrivateChannel: thread.Channel.IsPrivate,
		Pinned:         thread.IsPinned(),
	}
}

// IsModerator reports channel or community ownership.
func (p Permissions) IsModerator() bool {
	return p.ChannelOwner || p.CommunityOwner
}

func (p Permissions) canModerate() bool {
	return p.SignedIn && p.Member && (p.IsModerator() || p.Creator)
}

func (p Permissions) CanPin() bool {
	return p.canModerate() && p.CommunityOwner && !p.PrivateChannel
}

func (p Permissions) CanLock() bool {
	return p.canModerate() && p.IsModerator()
}

func (p Permissions) CanDelete() bool {
	return p.canModerate()
}

func (p Permissions) CanEdit() bool {
	return p.canModerate() && p.Creator
}

// ShowModeration reports whether the moderation controls are shown.
func (p Permissions) ShowModeration(editing bool) bool {
	return !editing && p.canModerate()
}

func (p Permissions) CanToggleNotifications(editing bool) bool {
	return p.SignedIn && p.Member && !editing
}

// ShowAdminBadge reports whether the byline carries an admin badge.
func (p Permissions) ShowAdminBadge() bool {
	return p.IsModerator()
}

// DeleteMessage is the confirmation text shown before deleting thread.
func DeleteMessage(thread domain.Thread, p Permissions) string {
	switch {
	case p.CommunityOwner && !p.Creator:
		return fmt.Sprintf("You are about to delete another person's thread. As the owner of the %s community, you have permission to do this. The thread creator will be notified that this thread was deleted.", thread.Community.Name)
	case p.ChannelOwner && !p.Creator:
		return fmt.Sprintf("You are about to delete another person's thread. As the owner of the %s channel, you have permission to do this. The thread creator will be notified that this thread was deleted.", thread.Channel.Name)
	default:
		return "Are you sure you want to delete this thread?"
	}
}
