package platform

import (
	"context"
	"errors"
)

// ErrGatewayDisabled is returned by every call on the disabled client.
var ErrGatewayDisabled = errors.New("platform: gateway adapter not configured")

// DisabledClient satisfies Client when no gateway adapter is wired in, such
// as when only the read API is being served. Every call fails fast.
type DisabledClient struct{}

// NewDisabledClient returns a client that rejects all platform calls.
func NewDisabledClient() *DisabledClient {
	return &DisabledClient{}
}

func (*DisabledClient) CreateDMChannel(context.Context, string) (string, error) {
	return "", ErrGatewayDisabled
}

func (*DisabledClient) SendMessage(context.Context, string, SendRequest) (*SentMessage, error) {
	return nil, ErrGatewayDisabled
}

func (*DisabledClient) CreateThread(context.Context, string, ThreadCreate) (string, error) {
	return "", ErrGatewayDisabled
}

func (*DisabledClient) LockThread(context.Context, string) error {
	return ErrGatewayDisabled
}

func (*DisabledClient) ArchiveThread(context.Context, string) error {
	return ErrGatewayDisabled
}

func (*DisabledClient) ListForumTags(context.Context, string) ([]ForumTag, error) {
	return nil, ErrGatewayDisabled
}

func (*DisabledClient) CreateForumTag(context.Context, string, string) (*ForumTag, error) {
	return nil, ErrGatewayDisabled
}

func (*DisabledClient) SetThreadTags(context.Context, string, []string) error {
	return ErrGatewayDisabled
}

func (*DisabledClient) SendWebhook(context.Context, string, WebhookSend) (*SentMessage, error) {
	return nil, ErrGatewayDisabled
}

func (*DisabledClient) MemberDisplayName(context.Context, string, string) (string, string, error) {
	return "", "", ErrGatewayDisabled
}

func (*DisabledClient) MemberHasRole(context.Context, string, string, string) (bool, error) {
	return false, ErrGatewayDisabled
}

var _ Client = (*DisabledClient)(nil)

func (*DisabledClient) PromptSelect(context.Context, string, SelectPrompt) ([]string, error) {
	return nil, ErrGatewayDisabled
}

func (*DisabledClient) PromptModal(context.Context, string, ModalPrompt) (string, error) {
	return "", ErrGatewayDisabled
}

var _ Prompter = (*DisabledClient)(nil)
