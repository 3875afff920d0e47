package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/barkeep/voicelink/internal/adapters/http"
	"github.com/barkeep/voicelink/internal/adapters/mic"
	"github.com/barkeep/voicelink/internal/adapters/rtc"
	"github.com/barkeep/voicelink/internal/adapters/sdp"
	"github.com/barkeep/voicelink/internal/adapters/token"
	"github.com/barkeep/voicelink/internal/bridge"
	"github.com/barkeep/voicelink/internal/config"
	"github.com/barkeep/voicelink/internal/core"
	"github.com/barkeep/voicelink/internal/domain"
	"github.com/barkeep/voicelink/internal/session"
	"github.com/barkeep/voicelink/internal/tools"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	registry, err := tools.Registry()
	if err != nil {
		log.Fatal().Err(err).Msg("tool registry")
	}

	creds := token.NewClient(cfg.TokenURL, cfg.HTTPTimeout)

	ctrl := session.NewController(
		session.Config{
			Voice:         cfg.Voice,
			Instructions:  cfg.Instructions,
			OpenTimeout:   cfg.OpenTimeout,
			ToolTimeout:   cfg.ToolTimeout,
			StatsInterval: cfg.StatsInterval,
		},
		session.Deps{
			Credentials: creds,
			Audio:       mic.NewAcquirer(mic.Config{SampleRate: cfg.SampleRate}),
			Negotiator:  sdp.NewClient(cfg.RealtimeURL, cfg.Model, cfg.HTTPTimeout),
			Registry:    registry,
			Transports: func() (core.Transport, error) {
				return rtc.NewPeerTransport(rtc.DefaultWebRTCConfig(), domain.SessionID("agent"))
			},
		},
		session.Callbacks{
			OnTranscript: func(text string) {
				log.Info().Str("module", "agent").Str("transcript", text).Msg("agent said")
			},
			OnError: func(err error) {
				log.Error().Err(err).Str("module", "agent").Msg("session ended with error")
			},
		},
	)

	relay := bridge.NewRelay(creds, cfg.RealtimeWSURL, cfg.Voice)

	r := router.SetupRouter(ctx, cfg, ctrl, relay)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voicelink agent started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	ctrl.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
