// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/repository"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/bwmarrin/discordgo"
	"github.com/samber/lo"
)

// Slash command names.
const (
	CommandVerify   = "verify"
	CommandUnverify = "unverify"
	CommandPending  = "pending"
)

// Commands returns the admin slash commands registered on the guild.
func Commands() []*discordgo.ApplicationCommand {
	perms := lo.ToPtr(int64(discordgo.PermissionManageRoles))
	userOption := func(description string) []*discordgo.ApplicationCommandOption {
		return []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: description,
			Required:    true,
		}}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:                     CommandVerify,
			Description:              "Send a member a new verification link",
			Options:                  userOption("Member to verify"),
			DefaultMemberPermissions: perms,
		},
		{
			Name:                     CommandUnverify,
			Description:              "Remove the verified role from a member",
			Options:                  userOption("Member to unverify"),
			DefaultMemberPermissions: perms,
		},
		{
			Name:                     CommandPending,
			Description:              "Show how many verifications are in progress",
			DefaultMemberPermissions: perms,
		},
	}
}

// IsAdmin reports whether member may run the admin commands.
func IsAdmin(member *discordgo.Member, adminRoleID string) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return adminRoleID != "" && lo.Contains(member.Roles, adminRoleID)
}

func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID != b.cfg.GuildID {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, eventTimeout)
	defer cancel()

	// Discord drops answers sent after three seconds. The reply follows as
	// an edit of the deferred response.
	err := b.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("failed to acknowledge slash command", "command", i.ApplicationCommandData().Name, "error", err)
		return
	}

	reply := b.runCommand(ctx, i)
	_, err = b.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:         &reply,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		slog.Warn("failed to answer slash command", "error", err)
	}
}

// runCommand executes an admin command and returns the reply text.
func (b *Bot) runCommand(ctx context.Context, i *discordgo.InteractionCreate) string {
	data := i.ApplicationCommandData()

	if !IsAdmin(i.Member, b.cfg.AdminRoleID) {
		return "You are not allowed to use this command."
	}

	actor := ""
	if i.Member != nil && i.Member.User != nil {
		actor = i.Member.User.ID
	}

	switch data.Name {
	case CommandPending:
		n := b.svc.Pending()
		if n == 1 {
			return "1 verification is pending."
		}
		return fmt.Sprintf("%d verifications are pending.", n)

	case CommandVerify:
		userID, label, ok := targetUser(data)
		if !ok {
			return "Please pick a member."
		}
		slog.Info("manual verification requested", "actor_id", actor, "subject_id", userID)

		started, err := b.svc.Start(ctx, userID, label)
		switch {
		case errors.Is(err, verification.ErrAlreadyVerified):
			return Mention(userID) + " is already verified."
		case err != nil:
			slog.Error("manual verification failed", "subject_id", userID, "error", err)
			return "Could not start the verification: " + err.Error()
		case !started.Notified:
			return "Verification started, but the link could not be delivered to " + Mention(userID) + "."
		}

		reply := "Sent a verification link to " + Mention(userID) + "."
		// Earlier links stay valid until they expire.
		if earlier := len(b.svc.Registry().BySubject(userID)) - 1; earlier > 0 {
			reply += fmt.Sprintf(" %d earlier link(s) are still pending.", earlier)
		}
		return reply + b.lastOutcome(ctx, userID)

	case CommandUnverify:
		userID, label, ok := targetUser(data)
		if !ok {
			return "Please pick a member."
		}
		slog.Info("manual revocation requested", "actor_id", actor, "subject_id", userID)

		if err := b.svc.Revoke(ctx, userID, label); err != nil {
			slog.Error("manual revocation failed", "subject_id", userID, "error", err)
			return "Could not remove the role: " + err.Error()
		}
		return "Removed the verified role from " + Mention(userID) + "."

	default:
		return "Unknown command."
	}
}

// lastOutcome describes the newest audit entry for a subject, or returns
// an empty string when there is none.
func (b *Bot) lastOutcome(ctx context.Context, subjectID string) string {
	if b.history == nil {
		return ""
	}
	e, err := b.history.LatestEvent(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Warn("failed to look up verification history", "subject_id", subjectID, "error", err)
		}
		return ""
	}
	return fmt.Sprintf(" Last outcome: %s on %s.", e.Outcome, e.CreatedAt.UTC().Format(time.DateOnly))
}

// targetUser extracts the "user" option. The label falls back to the ID
// when Discord did not resolve the user.
func targetUser(data discordgo.ApplicationCommandInteractionData) (id, label string, ok bool) {
	opt, found := lo.Find(data.Options, func(o *discordgo.ApplicationCommandInteractionDataOption) bool {
		return o.Name == "user" && o.Type == discordgo.ApplicationCommandOptionUser
	})
	if !found {
		return "", "", false
	}
	id, ok = opt.Value.(string)
	if !ok || id == "" {
		return "", "", false
	}

	label = id
	if data.Resolved != nil {
		if user, exists := data.Resolved.Users[id]; exists && user != nil {
			label = user.String()
		}
	}
	return id, label, true
}
