// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package discord connects the verification flow to a Discord guild.
package discord

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/oliverandrich/intragate/internal/config"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// ErrNoFallbackChannel is returned by Broadcast when no channel is configured.
var ErrNoFallbackChannel = errors.New("no fallback channel configured")

// API is the subset of *discordgo.Session used by this package.
type API interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Client manages the verified role of guild members.
type Client struct {
	api               API
	guildID           string
	roleID            string
	fallbackChannelID string
}

// NewClient creates a Client for the guild in cfg.
func NewClient(api API, cfg config.DiscordConfig) *Client {
	return &Client{
		api:               api,
		guildID:           cfg.GuildID,
		roleID:            cfg.RoleID,
		fallbackChannelID: cfg.FallbackChannelID,
	}
}

// HasMarker reports whether the member holds the verified role.
func (c *Client) HasMarker(ctx context.Context, subjectID string) (bool, error) {
	member, err := c.api.GuildMember(c.guildID, subjectID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetching guild member: %w", err)
	}
	return lo.Contains(member.Roles, c.roleID), nil
}

// GrantMarker adds the verified role.
func (c *Client) GrantMarker(ctx context.Context, subjectID string) error {
	if err := c.api.GuildMemberRoleAdd(c.guildID, subjectID, c.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("adding role: %w", err)
	}
	return nil
}

// RevokeMarker removes the verified role.
func (c *Client) RevokeMarker(ctx context.Context, subjectID string) error {
	if err := c.api.GuildMemberRoleRemove(c.guildID, subjectID, c.roleID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("removing role: %w", err)
	}
	return nil
}

// Notify sends n as a direct message.
func (c *Client) Notify(ctx context.Context, subjectID string, n verification.Notification) error {
	channel, err := c.api.UserChannelCreate(subjectID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("opening direct message channel: %w", err)
	}
	if _, err := c.api.ChannelMessageSendComplex(channel.ID, Message(n), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending direct message: %w", err)
	}
	return nil
}

// Broadcast posts n in the fallback channel, mentioning the subject.
func (c *Client) Broadcast(ctx context.Context, subjectID string, n verification.Notification) error {
	if c.fallbackChannelID == "" {
		return ErrNoFallbackChannel
	}

	msg := Message(n)
	msg.Content = Mention(subjectID)
	msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{subjectID}}

	if _, err := c.api.ChannelMessageSendComplex(c.fallbackChannelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending fallback message: %w", err)
	}
	return nil
}

// Compile-time check that *Client implements verification.Membership.
var _ verification.Membership = (*Client)(nil)
