// Package platform defines the boundary to the chat-platform SDK. The SDK
// itself (gateway, rate limiting, REST retries) lives outside this repo;
// everything here is the narrow surface the relay consumes.
package platform

import (
	"context"
	"errors"
	"time"
)

// Errors the relay distinguishes at the boundary. ErrUnknownChannel is
// structural (the thread or container was deleted out-of-band) and must not
// be retried; ErrCannotMessageUser means the user's DMs are closed.
var (
	ErrUnknownChannel    = errors.New("platform: unknown channel")
	ErrUnknownWebhook    = errors.New("platform: unknown webhook")
	ErrCannotMessageUser = errors.New("platform: cannot message user")
	ErrPromptTimeout     = errors.New("platform: prompt timed out")
	ErrPromptCancelled   = errors.New("platform: prompt cancelled")
)

// Limits imposed by the platform.
const (
	MaxThreadNameLength = 100
	MaxMessageLength    = 2000
)

// FileUpload is an attachment included inline with an outgoing message.
type FileUpload struct {
	Filename    string
	ContentType string
	URL         string
}

// SendRequest is one outgoing message.
type SendRequest struct {
	Content string
	Files   []FileUpload
	// Ephemeral marks interaction feedback only the recipient sees.
	Ephemeral bool
}

// WebhookSend posts through a container-scoped webhook with an overridden
// identity, used for the identity-preserving relay.
type WebhookSend struct {
	ThreadID  string
	Content   string
	Username  string
	AvatarURL string
	Files     []FileUpload
}

// SentMessage identifies a message after the platform accepted it.
type SentMessage struct {
	MessageID string
	ChannelID string
}

// ForumTag is one label available on a forum-style container.
type ForumTag struct {
	ID   string
	Name string
}

// ThreadCreate describes a new shared thread inside a forum container.
type ThreadCreate struct {
	Name           string
	InitialContent string
	AppliedTagIDs  []string
}

// Client is the chat-platform surface the relay consumes. Implementations
// wrap the real SDK and are assumed reliable at the transport level.
type Client interface {
	// CreateDMChannel returns the private channel for a user, creating it
	// if needed. Fails with ErrCannotMessageUser when DMs are closed.
	CreateDMChannel(ctx context.Context, userID string) (channelID string, err error)
	SendMessage(ctx context.Context, channelID string, req SendRequest) (*SentMessage, error)

	CreateThread(ctx context.Context, forumChannelID string, req ThreadCreate) (threadID string, err error)
	LockThread(ctx context.Context, threadID string) error
	ArchiveThread(ctx context.Context, threadID string) error

	ListForumTags(ctx context.Context, forumChannelID string) ([]ForumTag, error)
	CreateForumTag(ctx context.Context, forumChannelID, name string) (*ForumTag, error)
	SetThreadTags(ctx context.Context, threadID string, tagIDs []string) error

	// SendWebhook relays into a thread with the author's identity.
	SendWebhook(ctx context.Context, forumChannelID string, send WebhookSend) (*SentMessage, error)

	MemberDisplayName(ctx context.Context, guildID, userID string) (name string, avatarURL string, err error)
	MemberHasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
}

// SelectPrompt asks the user to pick from an option menu.
type SelectPrompt struct {
	Title     string
	Options   []string
	MultiPick bool
	MaxValues int
	Timeout   time.Duration
}

// ModalPrompt asks the user for free-form input in a single-field modal.
type ModalPrompt struct {
	Title       string
	Label       string
	Placeholder string
	LongInput   bool
	Timeout     time.Duration
}

// Prompter awaits exactly one interactive response from a user with a bounded
// wait. The UI layer implements it; the form engine drives it step by step.
type Prompter interface {
	PromptSelect(ctx context.Context, userID string, prompt SelectPrompt) ([]string, error)
	PromptModal(ctx context.Context, userID string, prompt ModalPrompt) (string, error)
}
