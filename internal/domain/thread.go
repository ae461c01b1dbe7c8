package domain

import "time"

// Thread is a top-level forum post as seen by the current user.
type Thread struct {
	ID          string       `json:"id"`
	Content     Content      `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`

	IsLocked             bool `json:"isLocked"`
	IsCreator            bool `json:"isCreator"`
	ReceiveNotifications bool `json:"receiveNotifications"`

	CreatedAt  time.Time  `json:"createdAt"`
	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`

	Creator   User      `json:"creator"`
	Channel   Channel   `json:"channel"`
	Community Community `json:"community"`
}

// Content is the editable part of a thread. Body is the serialized rich-text
// document.
type Content struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body"`
}

// User is the author of a thread.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username,omitempty"`
	ProfilePhoto string `json:"profilePhoto,omitempty"`
	IsOnline     bool   `json:"isOnline"`
	IsPro        bool   `json:"isPro"`
	Reputation   int    `json:"reputation"`
}

type Channel struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	IsPrivate   bool               `json:"isPrivate"`
	Permissions ChannelPermissions `json:"channelPermissions"`
}

type ChannelPermissions struct {
	IsMember bool `json:"isMember"`
	IsOwner  bool `json:"isOwner"`
}

type Community struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	PinnedThreadID string               `json:"pinnedThreadId,omitempty"`
	Permissions    CommunityPermissions `json:"communityPermissions"`
}

type CommunityPermissions struct {
	IsOwner bool `json:"isOwner"`
}

// IsPinned reports whether the thread is the community's pinned thread.
func (t Thread) IsPinned() bool {
	return t.ID != "" && t.Community.PinnedThreadID == t.ID
}

// FileUpload is a media file staged locally in the editor and not yet
// uploaded.
type FileUpload struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"-"`
}

// EditThreadInput is the single update request submitted on save.
type EditThreadInput struct {
	ThreadID      string       `json:"threadId" validate:"required"`
	Content       Content      `json:"content"`
	Attachments   []Attachment `json:"attachments"`
	FilesToUpload []FileUpload `json:"filesToUpload,omitempty"`
}
