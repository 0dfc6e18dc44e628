package discord

import (
	"github.com/bwmarrin/discordgo"
)

type messenger interface {
	Send(channelID, content string, embed *discordgo.MessageEmbed) (string, error)
	Edit(channelID, messageID, content string, embed *discordgo.MessageEmbed) error
	GuildRoles(guildID string) ([]*discordgo.Role, error)
	UpdateStatus(activity string) error
}

type sessionMessenger struct {
	session *discordgo.Session
}

func (messenger sessionMessenger) Send(channelID, content string, embed *discordgo.MessageEmbed) (string, error) {
	var message *discordgo.Message
	var err error
	if embed == nil {
		message, err = messenger.session.ChannelMessageSend(channelID, content)
	} else {
		message, err = messenger.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content: content,
			Embeds:  []*discordgo.MessageEmbed{embed},
		})
	}
	if err != nil {
		return "", err
	}
	return message.ID, nil
}

func (messenger sessionMessenger) Edit(channelID, messageID, content string, embed *discordgo.MessageEmbed) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(content)
	if embed != nil {
		edit = edit.SetEmbed(embed)
	}
	_, err := messenger.session.ChannelMessageEditComplex(edit)
	return err
}

// GuildRoles prefers the state cache and falls back to the API.
func (messenger sessionMessenger) GuildRoles(guildID string) ([]*discordgo.Role, error) {
	if guild, err := messenger.session.State.Guild(guildID); err == nil {
		return guild.Roles, nil
	}
	return messenger.session.GuildRoles(guildID)
}

func (messenger sessionMessenger) UpdateStatus(activity string) error {
	return messenger.session.UpdateGameStatus(0, activity)
}
