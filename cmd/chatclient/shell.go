package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-creator-hub/internal/app"
	"go-creator-hub/internal/model"
	"go-creator-hub/internal/profile"
	"go-creator-hub/internal/realtime"
	"go-creator-hub/internal/util"
	"go-creator-hub/pkg/apierror"
)

const (
	historyLimit   = 20
	commandTimeout = 15 * time.Second
)

const helpText = `commands:
  register <email> <password> <company|creator> [name]
  verify <token> [remember]        confirm an email and sign in
  resend <email>                   resend the confirmation email
  forgot <email>                   request a password reset
  reset <token> <new-password>
  login <email> <password> [remember]
  logout
  whoami
  conversations                    list conversations with unread counts
  start <user-id>                  open a conversation with another user
  open <conversation-id>           show history and follow live messages
  close                            stop following the open conversation
  send <text>                      send to the open conversation
  unread
  profile                          show your profile
  name <text>                      change your display name
  avatar <image-path>              upload a new avatar
  quit`

type shell struct {
	app *app.App

	mu   sync.Mutex
	out  io.Writer
	open string
}

func newShell(a *app.App, out io.Writer) *shell {
	s := &shell{app: a, out: out}
	a.Inbox.OnBadge(func(conversationID string, unread int, total int) {
		if unread > 0 {
			s.printf("\n(%d unread in %s, %d total)\n", unread, conversationID, total)
		}
	})
	return s
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) prompt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open != "" {
		fmt.Fprintf(s.out, "[%s]> ", short(s.open))
		return
	}
	fmt.Fprint(s.out, "> ")
}

func (s *shell) resume(ctx context.Context) {
	user, ok, err := s.app.Resume(ctx)
	if err != nil {
		s.printf("resume failed: %v\n", err)
		return
	}
	if ok {
		s.printf("welcome back %s (%s)\n", user.Email, user.Role)
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(parent context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	cmd, args := strings.ToLower(fields[0]), fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	s.wake()

	var err error
	switch cmd {
	case "quit", "exit":
		return true
	case "help", "?":
		s.printf("%s\n", helpText)
	case "register":
		err = s.register(ctx, args)
	case "verify":
		err = s.verify(ctx, args)
	case "resend":
		err = s.withArgs(args, 1, func() error { return s.app.Account.ResendVerification(ctx, args[0]) }, "confirmation email requested")
	case "forgot":
		err = s.withArgs(args, 1, func() error { return s.app.Account.ForgotPassword(ctx, args[0]) }, "reset email requested")
	case "reset":
		err = s.withArgs(args, 2, func() error { return s.app.Account.ResetPassword(ctx, args[0], args[1]) }, "password updated, you can log in now")
	case "login":
		err = s.login(ctx, args)
	case "logout":
		s.setOpen("")
		err = s.app.SignOut()
		if err == nil {
			s.printf("signed out\n")
		}
	case "whoami":
		s.whoami()
	case "conversations", "ls":
		err = s.conversations(ctx)
	case "start":
		err = s.start(ctx, args)
	case "open":
		err = s.openConversation(ctx, args)
	case "close":
		s.closeConversation()
	case "send":
		err = s.send(rest)
	case "unread":
		s.printf("%d unread\n", s.app.Inbox.TotalUnread())
	case "profile":
		err = s.showProfile(ctx)
	case "name":
		err = s.rename(ctx, rest)
	case "avatar":
		err = s.avatar(ctx, args)
	default:
		s.printf("unknown command %q, try help\n", cmd)
	}

	if err != nil {
		s.printf("error: %s\n", describe(err))
	}
	return false
}

// wake re-arms the realtime channel after its reconnect budget ran out.
func (s *shell) wake() {
	if !s.app.Session.IsAuthenticated() {
		return
	}
	if s.app.Channel.State() == realtime.StateDisconnected && len(s.app.Channel.Destinations()) > 0 {
		s.app.Channel.Connect()
	}
}

func (s *shell) withArgs(args []string, n int, fn func() error, done string) error {
	if len(args) < n {
		return errUsage
	}
	if err := fn(); err != nil {
		return err
	}
	s.printf("%s\n", done)
	return nil
}

var errUsage = errors.New("missing arguments, see help")

func (s *shell) register(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errUsage
	}

	role := model.RoleCompany
	if strings.HasPrefix(strings.ToLower(args[2]), "creator") || strings.EqualFold(args[2], model.RoleContentCreator) {
		role = model.RoleContentCreator
	}

	user, err := s.app.Account.Register(ctx, model.RegisterRequest{
		Email:    args[0],
		Password: args[1],
		Role:     role,
		Name:     strings.Join(args[3:], " "),
	})
	if err != nil {
		return err
	}

	if user.EmailVerified {
		s.printf("registered %s, you can log in now\n", user.Email)
	} else {
		s.printf("registered %s, check your email for the confirmation token\n", user.Email)
	}
	return nil
}

func (s *shell) verify(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}

	signedIn, err := s.app.Account.VerifyEmail(ctx, args[0], remember(args[1:]))
	if err != nil {
		return err
	}
	if !signedIn {
		s.printf("email confirmed, you can log in now\n")
		return nil
	}

	user, _ := s.app.Account.CurrentUser()
	if err := s.app.Inbox.Start(ctx, user.ID); err != nil {
		return err
	}
	s.printf("email confirmed, signed in as %s\n", user.Email)
	return nil
}

func (s *shell) login(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}

	res, err := s.app.SignIn(ctx, args[0], args[1], remember(args[2:]))
	if err != nil {
		return err
	}

	s.printf("signed in as %s (%s), %d unread\n", res.Email, res.Role, s.app.Inbox.TotalUnread())
	return nil
}

func (s *shell) whoami() {
	user, ok := s.app.Account.CurrentUser()
	if !ok {
		s.printf("not signed in\n")
		return
	}
	s.printf("%s %s (%s), realtime %s, expires %s\n",
		user.ID, user.Email, user.Role, s.app.Channel.State(), user.ExpiresAt.Local().Format(time.RFC822))
}

func (s *shell) conversations(ctx context.Context) error {
	list, err := s.app.API.Conversations(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		s.printf("no conversations yet\n")
		return nil
	}

	for _, c := range list {
		preview := ""
		if c.LastMessage != nil {
			preview = c.LastMessage.Content
		}
		s.printf("%s  unread %d  with %s  %s\n",
			c.ID, s.app.Inbox.Unread(c.ID), strings.Join(c.ParticipantIDs, ","), preview)
	}
	return nil
}

func (s *shell) start(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}

	conv, err := s.app.API.StartConversation(ctx, args[0])
	if err != nil {
		return err
	}
	s.printf("conversation %s\n", conv.ID)
	return s.openConversation(ctx, []string{conv.ID})
}

func (s *shell) openConversation(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	s.closeConversation()

	conversationID := args[0]
	history, err := s.app.Inbox.Open(ctx, conversationID, historyLimit, func(m model.Message) {
		s.printf("\n%s\n", s.formatMessage(m))
	})
	if err != nil {
		return err
	}
	s.setOpen(conversationID)

	for _, m := range history {
		s.printf("%s\n", s.formatMessage(m))
	}
	return nil
}

func (s *shell) closeConversation() {
	if id := s.current(); id != "" {
		s.app.Inbox.Close(id)
		s.setOpen("")
	}
}

func (s *shell) send(text string) error {
	id := s.current()
	if id == "" {
		return errors.New("no open conversation, use open <id> first")
	}
	_, err := s.app.Inbox.Send(id, text)
	return err
}

func (s *shell) showProfile(ctx context.Context) error {
	p, err := s.app.Profile.Get(ctx)
	if err != nil {
		return err
	}

	s.printf("%s <%s> %s\n", p.Name, p.Email, p.Role)
	for _, field := range [][2]string{
		{"bio", p.Bio}, {"website", p.Website}, {"industry", p.Industry},
		{"niche", p.Niche}, {"location", p.Location}, {"avatar", p.AvatarURL},
	} {
		if field[1] != "" {
			s.printf("  %s: %s\n", field[0], field[1])
		}
	}
	return nil
}

func (s *shell) rename(ctx context.Context, name string) error {
	if name == "" {
		return errUsage
	}
	p, err := s.app.Profile.Update(ctx, model.ProfileUpdate{Name: &name})
	if err != nil {
		return err
	}
	s.printf("name set to %s\n", p.Name)
	return nil
}

func (s *shell) avatar(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errUsage
	}
	path := args[0]
	if !util.IsAvatarExtension(filepath.Ext(path)) {
		return fmt.Errorf("%s does not look like a supported image", filepath.Base(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := s.app.Profile.UploadAvatar(ctx, f)
	if err != nil {
		return err
	}
	s.printf("avatar uploaded: %s\n", p.AvatarURL)
	return nil
}

func (s *shell) formatMessage(m model.Message) string {
	who := short(m.SenderID)
	if user, ok := s.app.Account.CurrentUser(); ok && user.ID == m.SenderID {
		who = "you"
	}
	return fmt.Sprintf("%s %s: %s", m.SentAt.Local().Format("15:04"), who, m.Content)
}

func (s *shell) current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *shell) setOpen(id string) {
	s.mu.Lock()
	s.open = id
	s.mu.Unlock()
}

func remember(args []string) bool {
	return len(args) > 0 && (args[0] == "remember" || args[0] == "-r")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// describe turns client errors into one line for the terminal.
func describe(err error) string {
	var apiErr *apierror.APIError
	switch {
	case errors.Is(err, realtime.ErrNotConnected):
		return "realtime channel is not connected, try again shortly"
	case errors.Is(err, profile.ErrNotSignedIn):
		return "not signed in"
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return err.Error()
	}
}
