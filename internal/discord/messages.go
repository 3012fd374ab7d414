// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package discord

import (
	"fmt"

	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/bwmarrin/discordgo"
)

const (
	colorBlurple = 0x5865F2
	colorGreen   = 0x57F287
)

// Message renders a notification as a Discord message.
func Message(n verification.Notification) *discordgo.MessageSend {
	switch n.Kind {
	case verification.NotifyGranted:
		description := "You now have access to the server."
		if n.Login != "" {
			description = fmt.Sprintf("Welcome, **%s**! You now have access to the server.", n.Login)
		}
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title:       "You are verified",
				Description: description,
				Color:       colorGreen,
			}},
		}
	default:
		return &discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{{
				Title: "Verify your 42 account",
				Description: fmt.Sprintf("To get access to the server, sign in with your 42 intranet account "+
					"and accept the rules. The link is valid for %d minutes.", int(verification.DefaultMaxAge.Minutes())),
				URL:   n.AuthURL,
				Color: colorBlurple,
				Footer: &discordgo.MessageEmbedFooter{
					Text: "Do not share this link. It is tied to your Discord account.",
				},
			}},
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.Button{Label: "Verify with 42", Style: discordgo.LinkButton, URL: n.AuthURL},
				}},
			},
		}
	}
}

// Mention formats a user mention.
func Mention(userID string) string {
	return "<@" + userID + ">"
}
