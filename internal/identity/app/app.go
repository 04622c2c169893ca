// Package app assembles the identity service: configuration, storage,
// services, HTTP surface, and process lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/audit"
	identityhttp "github.com/opencouncil/cityreport/internal/identity/http"
	"github.com/opencouncil/cityreport/internal/identity/mail"
	"github.com/opencouncil/cityreport/internal/identity/service"
	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/internal/identity/store/drivers/sqlite"
	"github.com/opencouncil/cityreport/pkg/clockx"
	"github.com/opencouncil/cityreport/pkg/jwtx"
	"github.com/opencouncil/cityreport/pkg/slogx"
)

// Application owns every long-lived component of the identity service.
type Application struct {
	cfg Config
	log *slog.Logger

	store        store.Store
	router       http.Handler
	housekeeping *service.HousekeepingService
}

// New builds a fully wired application from the given configuration.
func New(cfg Config) (*Application, error) {
	log := slogx.New(slogx.Config{
		Service: cfg.Service,
		Version: cfg.Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	st, err := sqlite.NewStore(cfg.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	signer, err := jwtx.NewHS256(cfg.SigningSecret, cfg.Issuer, cfg.Audience)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("configure token signer: %w", err)
	}

	clock := clockx.Real{}

	var mailer mail.Sender
	if cfg.SMTP.Host != "" {
		smtp, err := mail.NewSMTPSender(cfg.SMTP)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("configure smtp: %w", err)
		}
		mailer = smtp
	} else {
		log.Warn("SMTP_HOST not set, otp emails will be logged instead of sent")
		mailer = &mail.LogSender{Log: log}
	}

	auth := &service.AuthService{
		Store: st,
		Tokens: &service.TokenService{
			Signer:   signer,
			Clock:    clock,
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			TTL:      cfg.TokenTTL,
		},
		OTP: &service.OTPService{
			Store:       st,
			Clock:       clock,
			TTL:         cfg.OTPTTL,
			MaxAttempts: cfg.OTPMaxAttempts,
		},
		MFA: &service.MFAService{
			Store:  st,
			Clock:  clock,
			Issuer: cfg.MFAIssuer,
		},
		Mailer: mailer,
		Audit:  &audit.SlogRecorder{Log: log},
		Clock:  clock,
	}

	router := identityhttp.NewRouter(identityhttp.RouterConfig{
		Auth:     auth,
		Store:    st,
		Verifier: signer,
		Clock:    clock,
		Log:      log,
	})

	return &Application{
		cfg:    cfg,
		log:    log,
		store:  st,
		router: router,
		housekeeping: &service.HousekeepingService{
			Store:    st,
			Clock:    clock,
			Log:      log,
			Interval: cfg.HousekeepingInterval,
		},
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// within the configured grace period.
func (a *Application) Run(ctx context.Context) error {
	defer func() { _ = a.store.Close() }()

	hkCtx, stopHousekeeping := context.WithCancel(context.Background())
	defer stopHousekeeping()
	go a.housekeeping.Run(hkCtx)

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("identity service listening", slog.String("addr", a.cfg.ListenAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down", slog.Duration("grace", a.cfg.ShutdownGracePeriod))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
