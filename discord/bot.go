// Package discord is the chat frontend: it turns mentions of the bot into
// lifecycle operations.
package discord

import (
	"context"
	"strings"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/messages"
	"subuk/gamemango/util"

	"github.com/bwmarrin/discordgo"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const presenceSchedule = "@every 30m"

type Bot struct {
	session   *discordgo.Session
	messenger messenger
	service   *lifecycle.Service
	catalog   *messages.Catalog
	activity  string
	logger    zerolog.Logger
	cron      *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(token string, service *lifecycle.Service, catalog *messages.Catalog, activity string, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, util.NewError(err, "cannot create discord session")
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	bot := newBot(sessionMessenger{session: session}, service, catalog, activity, logger)
	bot.session = session
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onMessage)
	session.AddHandler(bot.onDisconnect)
	return bot, nil
}

func newBot(messenger messenger, service *lifecycle.Service, catalog *messages.Catalog, activity string, logger zerolog.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		messenger: messenger,
		service:   service,
		catalog:   catalog,
		activity:  activity,
		logger:    logger.With().Str("component", "discord").Logger(),
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Open connects to discord and starts the presence refresh.
func (bot *Bot) Open() error {
	if _, err := bot.cron.AddFunc(presenceSchedule, bot.refreshPresence); err != nil {
		return util.NewError(err, "cannot schedule presence refresh")
	}
	if err := bot.session.Open(); err != nil {
		return util.NewError(err, "cannot connect to discord")
	}
	bot.cron.Start()
	return nil
}

func (bot *Bot) Close() error {
	bot.cancel()
	<-bot.cron.Stop().Done()
	return bot.session.Close()
}

func (bot *Bot) refreshPresence() {
	if err := bot.messenger.UpdateStatus(bot.activity); err != nil {
		bot.logger.Warn().Err(err).Msg("cannot update presence")
	}
}

func (bot *Bot) onReady(session *discordgo.Session, ready *discordgo.Ready) {
	bot.logger.Info().Msg(bot.catalog.LogMessage("connected"))
	bot.logger.Info().Msg(bot.catalog.LogMessage("loggedin", "<user>", ready.User.Username))
	bot.refreshPresence()
}

type incomingMessage struct {
	ChannelID   string
	GuildID     string
	AuthorName  string
	AuthorIsBot bool
	MemberRoles []string
	Content     string
}

func (bot *Bot) onMessage(session *discordgo.Session, create *discordgo.MessageCreate) {
	if create.Author == nil || session.State.User == nil {
		return
	}
	message := incomingMessage{
		ChannelID:   create.ChannelID,
		GuildID:     create.GuildID,
		AuthorName:  create.Author.Username,
		AuthorIsBot: create.Author.Bot,
		Content:     create.Content,
	}
	if create.Member != nil {
		message.MemberRoles = create.Member.Roles
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			bot.logger.Error().Interface("panic", recovered).Str("channel", message.ChannelID).Msg(bot.catalog.LogMessage("unhandled_error"))
		}
	}()
	bot.handle(message, session.State.User.ID)
}

// discordgo reconnects on its own after a disconnect.
func (bot *Bot) onDisconnect(session *discordgo.Session, disconnect *discordgo.Disconnect) {
	bot.logger.Warn().Msg(bot.catalog.LogMessage("reconnecting"))
}

func (bot *Bot) send(channelID, content string) {
	if _, err := bot.messenger.Send(channelID, content, nil); err != nil {
		bot.logger.Error().Err(err).Msg("cannot send message")
	}
}

func (bot *Bot) helpText() string {
	lines := []string{
		bot.catalog.Get("command_format"),
		bot.catalog.Get("command_list"),
		bot.catalog.Get("server_list"),
	}
	for _, name := range bot.service.Names() {
		lines = append(lines, "\t"+name)
	}
	return strings.Join(lines, "\n")
}

func (bot *Bot) handle(message incomingMessage, botID string) {
	if message.AuthorIsBot {
		return
	}
	command, addressed := ParseCommand(message.Content, botID)
	if !addressed {
		return
	}
	if command.Help {
		bot.send(message.ChannelID, bot.helpText())
		return
	}
	if command.Invalid {
		bot.send(message.ChannelID, strings.Join([]string{
			bot.catalog.Get("invalid_command"),
			bot.catalog.Get("command_format"),
			bot.catalog.Get("for_help"),
		}, "\n"))
		return
	}

	mgr, err := bot.service.Manager(command.Server)
	if err != nil {
		bot.send(message.ChannelID, bot.catalog.Get("unknown_server", "<sname>", command.Server))
		return
	}
	server := mgr.Config()

	guildRoles, err := bot.messenger.GuildRoles(message.GuildID)
	if err != nil {
		bot.logger.Error().Err(err).Str("guild", message.GuildID).Msg("cannot fetch guild roles")
	}
	if !hasPermission(server.PermittedRoles, guildRoles, message.MemberRoles) {
		bot.send(message.ChannelID, bot.catalog.Get("no_permission"))
		return
	}

	logger := bot.logger.With().Str("server", server.Name).Str("command", command.Name).Str("user", message.AuthorName).Logger()
	logger.Info().Msg("command received")
	notifier := &channelNotifier{
		messenger: bot.messenger,
		catalog:   bot.catalog,
		channelID: message.ChannelID,
		logger:    logger,
	}

	switch command.Name {
	case "pack", "modpack", "link":
		if server.ModpackLink == "" {
			bot.send(message.ChannelID, bot.catalog.Get("no_modpack_link", "<sname>", server.Name))
			return
		}
		bot.send(message.ChannelID, bot.catalog.Get("modpack_link")+server.ModpackLink)
	case "stats":
		bot.service.Stats(bot.ctx, server.Name, notifier)
	case "stop":
		bot.service.Stop(bot.ctx, server.Name, notifier)
	case "open", "start":
		bot.service.Open(bot.ctx, server.Name, notifier)
	default:
		logger.Debug().Msg("unknown command")
		bot.send(message.ChannelID, bot.catalog.Get("unknown_command", "<cmd>", command.Name)+"\n"+bot.catalog.Get("for_help"))
	}
}
