// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/config"
	"codeberg.org/oliverandrich/intragate/internal/models"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/bwmarrin/discordgo"
)

const eventTimeout = 30 * time.Second

// NewSession creates a gateway session with the intents the bot needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return session, nil
}

// Bot reacts to gateway events: member joins and admin commands.
type Bot struct {
	session   *discordgo.Session
	api       API
	svc       *verification.Service
	cfg       config.DiscordConfig
	history   History
	ctx       context.Context
	connected atomic.Bool
}

// History looks up past outcomes for moderator replies.
type History interface {
	LatestEvent(ctx context.Context, subjectID string) (*models.VerificationEvent, error)
}

// BotOption configures a Bot.
type BotOption func(*Bot)

// WithHistory adds the last recorded outcome to /verify replies.
func WithHistory(h History) BotOption {
	return func(b *Bot) {
		b.history = h
	}
}

// NewBot creates a bot around an unopened session.
func NewBot(session *discordgo.Session, svc *verification.Service, cfg config.DiscordConfig, opts ...BotOption) *Bot {
	b := &Bot{
		session: session,
		api:     session,
		svc:     svc,
		cfg:     cfg,
		ctx:     context.Background(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connected reports whether the gateway connection is ready.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	removers := []func(){
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onResumed),
		b.session.AddHandler(b.onDisconnect),
		b.session.AddHandler(b.onMemberAdd),
		b.session.AddHandler(b.onInteraction),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening discord gateway: %w", err)
	}
	slog.Info("discord gateway opened", "guild_id", b.cfg.GuildID)

	<-ctx.Done()

	b.connected.Store(false)
	if err := b.session.Close(); err != nil {
		slog.Warn("failed to close discord gateway", "error", err)
	}
	slog.Info("discord gateway closed")
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.connected.Store(true)
	slog.Info("discord gateway ready", "user", r.User.String())

	if !b.cfg.RegisterCommands || r.Application == nil {
		return
	}
	registered, err := s.ApplicationCommandBulkOverwrite(r.Application.ID, b.cfg.GuildID, Commands())
	if err != nil {
		slog.Error("failed to register slash commands", "error", err)
		return
	}
	slog.Info("slash commands registered", "count", len(registered))
}

func (b *Bot) onResumed(_ *discordgo.Session, _ *discordgo.Resumed) {
	b.connected.Store(true)
	slog.Info("discord gateway resumed")
}

func (b *Bot) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	b.connected.Store(false)
	slog.Warn("discord gateway disconnected")
}

func (b *Bot) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.GuildID != b.cfg.GuildID || m.User == nil || m.User.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()

	b.startVerification(ctx, m.User.ID, m.User.String())
}

func (b *Bot) startVerification(ctx context.Context, userID, label string) {
	started, err := b.svc.Start(ctx, userID, label)
	switch {
	case errors.Is(err, verification.ErrAlreadyVerified):
		slog.Debug("member already verified", "subject_id", userID)
	case err != nil:
		slog.Error("failed to start verification", "subject_id", userID, "error", err)
	case !started.Notified:
		slog.Warn("verification link could not be delivered", "subject_id", userID)
	}
}
