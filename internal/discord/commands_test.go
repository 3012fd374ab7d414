// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/models"
	"codeberg.org/oliverandrich/intragate/internal/repository"
	"codeberg.org/oliverandrich/intragate/internal/testutil"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin     = &discordgo.Member{User: &discordgo.User{ID: "42"}, Permissions: discordgo.PermissionAdministrator}
	moderator = &discordgo.Member{User: &discordgo.User{ID: "43"}, Roles: []string{"mods"}}
	member    = &discordgo.Member{User: &discordgo.User{ID: "44"}, Roles: []string{"verified"}}
)

type fakeHistory map[string]*models.VerificationEvent

func (h fakeHistory) LatestEvent(_ context.Context, subjectID string) (*models.VerificationEvent, error) {
	if e, ok := h[subjectID]; ok {
		return e, nil
	}
	return nil, repository.ErrNotFound
}

func newTestBot() (*Bot, *fakeAPI, *verification.Service) {
	api := newFakeAPI()
	svc := verification.NewService(verification.NewRegistry(), &testutil.FakeIdentity{}, NewClient(api, testConfig))
	bot := &Bot{api: api, svc: svc, cfg: testConfig, ctx: context.Background()}
	return bot, api, svc
}

func command(name string, caller *discordgo.Member, userID string) *discordgo.InteractionCreate {
	data := discordgo.ApplicationCommandInteractionData{Name: name}
	if userID != "" {
		data.Options = []*discordgo.ApplicationCommandInteractionDataOption{{
			Name:  "user",
			Type:  discordgo.ApplicationCommandOptionUser,
			Value: userID,
		}}
		data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
			Users: map[string]*discordgo.User{userID: {ID: userID, Username: "jdoe", Discriminator: "0"}},
		}
	}
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "guild",
		Member:  caller,
		Data:    data,
	}}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name        string
		member      *discordgo.Member
		adminRoleID string
		expected    bool
	}{
		{"nil member", nil, "mods", false},
		{"administrator", admin, "", true},
		{"admin role", moderator, "mods", true},
		{"admin role not configured", moderator, "", false},
		{"regular member", member, "mods", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsAdmin(tt.member, tt.adminRoleID))
		})
	}
}

func TestCommands(t *testing.T) {
	cmds := Commands()

	require.Len(t, cmds, 3)
	names := []string{cmds[0].Name, cmds[1].Name, cmds[2].Name}
	assert.Equal(t, []string{CommandVerify, CommandUnverify, CommandPending}, names)
	for _, cmd := range cmds {
		require.NotNil(t, cmd.DefaultMemberPermissions)
		assert.NotEmpty(t, cmd.Description)
	}
	require.Len(t, cmds[0].Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, cmds[0].Options[0].Type)
	assert.True(t, cmds[0].Options[0].Required)
	assert.Empty(t, cmds[2].Options)
}

func TestRunCommand(t *testing.T) {
	t.Run("not allowed", func(t *testing.T) {
		bot, _, svc := newTestBot()

		reply := bot.runCommand(context.Background(), command(CommandVerify, member, "1001"))

		assert.Equal(t, "You are not allowed to use this command.", reply)
		assert.Equal(t, 0, svc.Pending())
	})

	t.Run("pending", func(t *testing.T) {
		bot, _, _ := newTestBot()
		assert.Equal(t, "0 verifications are pending.", bot.runCommand(context.Background(), command(CommandPending, admin, "")))
	})

	t.Run("verify sends link", func(t *testing.T) {
		bot, api, svc := newTestBot()

		reply := bot.runCommand(context.Background(), command(CommandVerify, moderator, "1001"))

		assert.Equal(t, "Sent a verification link to <@1001>.", reply)
		assert.Equal(t, 1, svc.Pending())
		sent := api.messages()
		require.Len(t, sent, 1)
		assert.Equal(t, "dm-1001", sent[0].channelID)
		assert.Equal(t, "jdoe", svc.Registry().BySubject("1001")[0].SubjectLabel)
		assert.Equal(t, "1 verification is pending.", bot.runCommand(context.Background(), command(CommandPending, admin, "")))
	})

	t.Run("verify reports earlier links", func(t *testing.T) {
		bot, _, svc := newTestBot()

		bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))
		reply := bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))

		assert.Equal(t, "Sent a verification link to <@1001>. 1 earlier link(s) are still pending.", reply)
		assert.Equal(t, 2, svc.Pending())
	})

	t.Run("verify reports last outcome", func(t *testing.T) {
		bot, _, _ := newTestBot()
		bot.history = fakeHistory{"1001": {
			SubjectID: "1001",
			Outcome:   "declined",
			CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		}}

		reply := bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))
		assert.Equal(t, "Sent a verification link to <@1001>. Last outcome: declined on 2025-03-01.", reply)

		reply = bot.runCommand(context.Background(), command(CommandVerify, admin, "2002"))
		assert.Equal(t, "Sent a verification link to <@2002>.", reply)
	})

	t.Run("verify already verified", func(t *testing.T) {
		bot, api, svc := newTestBot()
		api.members["1001"] = &discordgo.Member{Roles: []string{"verified"}}

		reply := bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))

		assert.Equal(t, "<@1001> is already verified.", reply)
		assert.Equal(t, 0, svc.Pending())
	})

	t.Run("verify undeliverable", func(t *testing.T) {
		bot, api, svc := newTestBot()
		api.sendErr = errors.New("missing access")

		reply := bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))

		assert.Contains(t, reply, "could not be delivered")
		assert.Equal(t, 1, svc.Pending())
	})

	t.Run("verify lookup error", func(t *testing.T) {
		bot, api, _ := newTestBot()
		api.memberErr = errors.New("unknown member")

		reply := bot.runCommand(context.Background(), command(CommandVerify, admin, "1001"))

		assert.Contains(t, reply, "Could not start the verification")
	})

	t.Run("unverify", func(t *testing.T) {
		bot, api, _ := newTestBot()

		reply := bot.runCommand(context.Background(), command(CommandUnverify, admin, "1001"))

		assert.Equal(t, "Removed the verified role from <@1001>.", reply)
		assert.Equal(t, []roleChange{{"guild", "1001", "verified"}}, api.removed)
	})

	t.Run("unverify error", func(t *testing.T) {
		bot, api, _ := newTestBot()
		api.roleErr = errors.New("missing permissions")

		reply := bot.runCommand(context.Background(), command(CommandUnverify, admin, "1001"))

		assert.Contains(t, reply, "Could not remove the role")
	})

	t.Run("missing user option", func(t *testing.T) {
		bot, _, _ := newTestBot()
		assert.Equal(t, "Please pick a member.", bot.runCommand(context.Background(), command(CommandUnverify, admin, "")))
	})

	t.Run("unknown command", func(t *testing.T) {
		bot, _, _ := newTestBot()
		assert.Equal(t, "Unknown command.", bot.runCommand(context.Background(), command("dance", admin, "")))
	})
}

func TestOnInteraction(t *testing.T) {
	bot, api, _ := newTestBot()

	bot.onInteraction(nil, command(CommandPending, admin, ""))

	require.Len(t, api.responses, 1)
	resp := api.responses[0]
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, resp.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Empty(t, resp.Data.Content)

	require.Len(t, api.edits, 1)
	require.NotNil(t, api.edits[0].Content)
	assert.Equal(t, "0 verifications are pending.", *api.edits[0].Content)
	assert.NotNil(t, api.edits[0].AllowedMentions)
}

func TestOnInteraction_AcknowledgeFails(t *testing.T) {
	bot, api, svc := newTestBot()
	api.respondErr = errors.New("unknown interaction")

	bot.onInteraction(nil, command(CommandVerify, admin, "1001"))

	assert.Empty(t, api.edits)
	assert.Equal(t, 0, svc.Pending(), "the command must not run unanswered")
	assert.Empty(t, api.messages())
}

func TestOnInteraction_IgnoresOtherGuilds(t *testing.T) {
	bot, api, _ := newTestBot()
	i := command(CommandPending, admin, "")
	i.GuildID = "elsewhere"

	bot.onInteraction(nil, i)

	assert.Empty(t, api.responses)
}

func TestOnMemberAdd(t *testing.T) {
	join := func(guildID string, user *discordgo.User) *discordgo.GuildMemberAdd {
		return &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: guildID, User: user}}
	}

	tests := []struct {
		name    string
		event   *discordgo.GuildMemberAdd
		pending int
	}{
		{"member joins", join("guild", &discordgo.User{ID: "1001", Username: "jdoe", Discriminator: "0"}), 1},
		{"bot joins", join("guild", &discordgo.User{ID: "1002", Bot: true}), 0},
		{"other guild", join("elsewhere", &discordgo.User{ID: "1003"}), 0},
		{"no user", join("guild", nil), 0},
		{"no member", &discordgo.GuildMemberAdd{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot, _, svc := newTestBot()

			bot.onMemberAdd(nil, tt.event)

			assert.Equal(t, tt.pending, svc.Pending())
		})
	}
}

func TestOnMemberAdd_AlreadyVerified(t *testing.T) {
	bot, api, svc := newTestBot()
	api.members["1001"] = &discordgo.Member{Roles: []string{"verified"}}

	bot.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "guild",
		User:    &discordgo.User{ID: "1001"},
	}})

	assert.Equal(t, 0, svc.Pending())
	assert.Empty(t, api.messages())
}

func TestConnected(t *testing.T) {
	bot, _, _ := newTestBot()
	assert.False(t, bot.Connected())

	bot.onResumed(nil, &discordgo.Resumed{})
	assert.True(t, bot.Connected())

	bot.onDisconnect(nil, &discordgo.Disconnect{})
	assert.False(t, bot.Connected())
}
