package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"yomiage-bot/internal/discord"
	"yomiage-bot/internal/phrase"
	"yomiage-bot/internal/quiz"
	"yomiage-bot/internal/reading"
	"yomiage-bot/internal/store"
	"yomiage-bot/internal/theme"
	"yomiage-bot/internal/voice"
	"yomiage-bot/pkg/config"
	"yomiage-bot/pkg/logger"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting reading bot...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize document store and text pipeline
	st := store.New(cfg.DataDir, cfg.SettingsDir)

	normalizer, err := reading.NewNormalizer(st, log)
	if err != nil {
		log.Fatal("Failed to build text normalizer", zap.Error(err))
	}

	resolver := phrase.NewResolver(st, log)
	synth := voice.NewSynthesizer(cfg.OpenJTalkBin, cfg.DicDir, cfg.SysVoiceDir, cfg.TempDir, log)
	acquirer := voice.NewAcquirer(resolver, synth, st, cfg.TempDir, log)

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordBotToken)
	if err != nil {
		log.Fatal("Failed to create Discord session", zap.Error(err))
	}

	gateway := discord.NewGateway(dg, log)
	serifs := discord.LoadSerifs(st, log)
	manager := voice.NewManager(gateway, st, normalizer, acquirer, serifs.Get, cfg.FfmpegBin, cfg.ReadMaxChars, log)

	quizFeature := quiz.New(st, manager, cfg.YtdlpBin, cfg.FfmpegBin, cfg.TempDir, log)
	themeFeature := theme.New(st, acquirer, manager, log)

	// Create message handler
	handler := discord.NewHandler(manager, quizFeature, themeFeature, serifs, cfg.CommandPrefix, log)

	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		handler.HandleMessage(s, m)
	})
	dg.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		handler.HandleVoiceStateUpdate(s, v)
	})
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
		handler.HandleReactionAdd(s, r)
	})

	// Voice states are required for channel watching, reactions for the quiz panel
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	// Open connection
	if err := dg.Open(); err != nil {
		log.Fatal("Failed to open Discord connection", zap.Error(err))
	}
	defer dg.Close()

	log.Info("Reading bot is running. Press CTRL-C to exit.",
		zap.String("prefix", cfg.CommandPrefix),
	)

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-shutdownChan

	log.Info("Shutting down reading bot...")
}
