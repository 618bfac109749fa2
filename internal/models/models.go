package models

import (
	"time"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusIdle    UserStatus = "idle"
	StatusDnd     UserStatus = "dnd"
	StatusOffline UserStatus = "offline"
)

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsManager reports whether the role may manage channels and moderate messages.
func (r Role) IsManager() bool {
	return r == RoleOwner || r == RoleAdmin
}

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

func (t ChannelType) Valid() bool {
	return t == ChannelText || t == ChannelVoice
}

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentPdf      AttachmentType = "pdf"
	AttachmentDocument AttachmentType = "document"
	AttachmentArchive  AttachmentType = "archive"
	AttachmentText     AttachmentType = "text"
	AttachmentOther    AttachmentType = "other"
)

type User struct {
	ID           int64      `json:"id,string"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	Avatar       *string    `json:"avatar"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	PasswordHash []byte     `json:"-"`
}

// UserSummary is the author/member projection embedded in other payloads.
type UserSummary struct {
	ID       int64      `json:"id,string"`
	Username string     `json:"username"`
	Avatar   *string    `json:"avatar"`
	Status   UserStatus `json:"status"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Avatar: u.Avatar, Status: u.Status}
}

type Server struct {
	ID        int64     `json:"id,string"`
	Name      string    `json:"name"`
	Icon      *string   `json:"icon"`
	IconColor string    `json:"iconColor"`
	OwnerID   int64     `json:"ownerId,string"`
	CreatedAt time.Time `json:"createdAt"`
}

type ServerCounts struct {
	Members  int `json:"members"`
	Channels int `json:"channels"`
}

// ServerListItem is one entry of the caller's server list.
type ServerListItem struct {
	Server
	Owner  UserSummary  `json:"owner"`
	Counts ServerCounts `json:"_count"`
}

type ServerDetail struct {
	Server
	Owner    UserSummary    `json:"owner"`
	Members  []ServerMember `json:"members"`
	Channels []Channel      `json:"channels"`
}

type ServerMember struct {
	UserID   int64        `json:"userId,string"`
	ServerID int64        `json:"serverId,string"`
	Role     Role         `json:"role"`
	JoinedAt time.Time    `json:"joinedAt"`
	User     *UserSummary `json:"user,omitempty"`
}

type Channel struct {
	ID        int64       `json:"id,string"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	ServerID  int64       `json:"serverId,string"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Attachment struct {
	ID        int64          `json:"id,string"`
	Filename  string         `json:"filename"`
	URL       string         `json:"url"`
	Type      AttachmentType `json:"type"`
	Size      int64          `json:"size"`
	MessageID int64          `json:"messageId,string"`
}

type Message struct {
	ID          int64        `json:"id,string"`
	Content     string       `json:"content"`
	ChannelID   int64        `json:"channelId,string"`
	AuthorID    int64        `json:"authorId,string"`
	Author      UserSummary  `json:"author"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   *time.Time   `json:"updatedAt"`
}

type RefreshToken struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
