package discord

import (
	"strconv"
	"strings"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/manager"
	"subuk/gamemango/messages"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

const statsColor = 0x03DFFC

func statsEmbed(catalog *messages.Catalog, info *manager.ServerInfo) *discordgo.MessageEmbed {
	names := strings.Builder{}
	for _, player := range info.Players {
		names.WriteString(player)
		names.WriteString("\n")
	}
	return &discordgo.MessageEmbed{
		Color:       statsColor,
		Author:      &discordgo.MessageEmbedAuthor{Name: catalog.PlayersLine(info)},
		Description: names.String(),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "IP: " + info.Ip + "\nPORT: " + strconv.Itoa(info.Port),
		},
	}
}

// channelNotifier posts notices to one channel. Progress notices of an
// open sequence edit a single status message.
type channelNotifier struct {
	messenger messenger
	catalog   *messages.Catalog
	channelID string
	logger    zerolog.Logger

	mutex           sync.Mutex
	statusMessageID string
}

func (notifier *channelNotifier) Notify(notice lifecycle.Notice) {
	var embed *discordgo.MessageEmbed
	if notice.Info != nil && (notice.Kind == lifecycle.NoticeServerOpened || notice.Kind == lifecycle.NoticeStats) {
		embed = statsEmbed(notifier.catalog, notice.Info)
	}
	content := notifier.catalog.Render(notice)
	if notice.Kind == lifecycle.NoticeStats {
		content = ""
	}

	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	if notice.Kind.Progress() && notifier.statusMessageID != "" {
		err := notifier.messenger.Edit(notifier.channelID, notifier.statusMessageID, content, embed)
		if err == nil {
			return
		}
		notifier.logger.Warn().Err(err).Msg("cannot edit status message, sending a new one")
	}
	messageID, err := notifier.messenger.Send(notifier.channelID, content, embed)
	if err != nil {
		notifier.logger.Error().Err(err).Str("notice", notice.Kind.String()).Msg("cannot send message")
		return
	}
	if notice.Kind.Progress() {
		notifier.statusMessageID = messageID
	}
}
