// Package bot wires the Telegram bot: middleware, commands and callbacks.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"telegram-daily-spin/internal/config"
	"telegram-daily-spin/internal/handler"
	"telegram-daily-spin/internal/prize"
)

// NewClient creates the telebot instance. It is shared by the bot, the
// claim bridge and the reveal notifier.
func NewClient(token string) (*tele.Bot, error) {
	if token == "" {
		return nil, config.ErrMissingToken
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Bot handler error")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}

// Bot wraps the telebot instance with the handlers.
type Bot struct {
	bot  *tele.Bot
	cfg  *config.Config
	seen *privateUsers

	accountHandler *handler.AccountHandler
	bagHandler     *handler.BagHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds what the handlers need.
type Dependencies struct {
	Client  *tele.Bot
	Config  *config.Config
	Wheel   handler.Wheel
	Catalog *prize.Catalog
}

// New registers middleware and handlers on deps.Client.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("bot client is required")
	}

	b := &Bot{
		bot:            deps.Client,
		cfg:            deps.Config,
		seen:           newPrivateUsers(),
		accountHandler: handler.NewAccountHandler(deps.Wheel, deps.Config.Bot.WebAppURL),
		bagHandler:     handler.NewBagHandler(deps.Wheel, deps.Catalog),
		adminHandler:   handler.NewAdminHandler(deps.Wheel),
	}

	b.registerMiddleware()
	b.registerHandlers()
	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.seen))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)
	b.bot.Handle("/spin", b.accountHandler.HandleSpin)
	b.bot.Handle("/bag", b.bagHandler.HandleBag)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/credit", b.adminHandler.HandleCredit)

	b.bot.Handle(tele.OnCallback, b.handleCallback)
}

// handleCallback routes inline buttons by their unique.
func (b *Bot) handleCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}

	unique, _ := handler.ParseCallback(cb.Data)
	switch unique {
	case handler.CallbackClaim:
		return b.accountHandler.HandleClaimCallback(c)
	case handler.CallbackBag, handler.CallbackConvert, handler.CallbackSend, handler.CallbackRemove:
		return b.bagHandler.HandleCallback(c)
	default:
		log.Debug().Str("data", cb.Data).Msg("Unknown callback")
		return c.Respond()
	}
}

// Start polls for updates until Stop.
func (b *Bot) Start() {
	log.Info().Str("username", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops polling.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
