package api

import (
	"context"
	"net/url"
	"strconv"

	"go-creator-hub/internal/model"
)

const (
	SegmentCompany        = "company"
	SegmentContentCreator = "content-creator"
)

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResult, error) {
	var out model.LoginResult
	if err := c.Post(ctx, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	var out model.User
	if err := c.Post(ctx, "/auth/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEmail confirms a registration. The result is nil when the backend
// does not sign the user in as part of the confirmation.
func (c *Client) VerifyEmail(ctx context.Context, token string) (*model.LoginResult, error) {
	var out *model.LoginResult
	if err := c.Post(ctx, "/auth/verify-email", model.VerifyEmailRequest{Token: token}, &out); err != nil {
		return nil, err
	}
	if out != nil && out.Token == "" {
		return nil, nil
	}
	return out, nil
}

func (c *Client) ResendVerification(ctx context.Context, email string) error {
	return c.Post(ctx, "/auth/resend-verification", model.EmailRequest{Email: email}, nil)
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.Post(ctx, "/auth/forgot-password", model.EmailRequest{Email: email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, token string, newPassword string) error {
	return c.Post(ctx, "/auth/reset-password", model.ResetPasswordRequest{Token: token, NewPassword: newPassword}, nil)
}

// GetProfile reads the profile under the role segment, SegmentCompany or
// SegmentContentCreator.
func (c *Client) GetProfile(ctx context.Context, segment string) (*model.Profile, error) {
	var out model.Profile
	if err := c.Get(ctx, "/"+segment+"/profile", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateProfile(ctx context.Context, segment string, update model.ProfileUpdate) (*model.Profile, error) {
	var out model.Profile
	if err := c.Put(ctx, "/"+segment+"/profile", update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UploadAvatar(ctx context.Context, segment string, jpeg []byte) (*model.Profile, error) {
	var out model.Profile
	if err := c.PutBody(ctx, "/"+segment+"/profile/avatar", "image/jpeg", jpeg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var out []model.Conversation
	if err := c.Get(ctx, "/chat/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartConversation(ctx context.Context, participantID string) (*model.Conversation, error) {
	var out model.Conversation
	if err := c.Post(ctx, "/chat/conversations", model.StartConversationRequest{ParticipantID: participantID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Messages lists a conversation's history, oldest first. limit <= 0 leaves
// the page size to the server.
func (c *Client) Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var out []model.Message
	if err := c.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.Post(ctx, "/chat/conversations/"+url.PathEscape(conversationID)+"/read", nil, nil)
}

func (c *Client) UnreadCounts(ctx context.Context) (*model.UnreadCounts, error) {
	var out model.UnreadCounts
	if err := c.Get(ctx, "/chat/unread-count", &out); err != nil {
		return nil, err
	}
	if out.ByConversation == nil {
		out.ByConversation = map[string]int{}
	}
	return &out, nil
}
