package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

type Command struct {
	Help    bool
	Invalid bool
	Name    string
	Server  string
}

func isMention(token, userID string) bool {
	return token == "<@"+userID+">" || token == "<@!"+userID+">"
}

// ParseCommand parses "@bot <command> <server>". The second result is false
// when the message is not addressed to the bot.
func ParseCommand(content, botID string) (Command, bool) {
	tokens := strings.Fields(content)
	if len(tokens) == 0 || !isMention(tokens[0], botID) {
		return Command{}, false
	}
	if len(tokens) == 1 || strings.EqualFold(tokens[1], "help") {
		return Command{Help: true}, true
	}
	if len(tokens) != 3 {
		return Command{Invalid: true}, true
	}
	return Command{Name: strings.ToLower(tokens[1]), Server: tokens[2]}, true
}

// hasPermission reports whether the member holds one of the permitted
// roles, matched by name against the guild roles.
func hasPermission(permitted []string, guildRoles []*discordgo.Role, memberRoles []string) bool {
	memberHas := map[string]bool{}
	for _, roleID := range memberRoles {
		memberHas[roleID] = true
	}
	for _, name := range permitted {
		for _, role := range guildRoles {
			if role.Name == name && memberHas[role.ID] {
				return true
			}
		}
	}
	return false
}
