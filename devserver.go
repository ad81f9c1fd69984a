package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/zsprackett/chargewatch/internal/config"
	"github.com/zsprackett/chargewatch/internal/devserver"
)

// demoAccounts are used when devserver.accounts is empty.
var demoAccounts = []struct {
	email, password, name string
	admin                 bool
}{
	{"admin@example.com", "admin", "Station Operator", true},
	{"driver@example.com", "driver", "Demo Driver", false},
}

func devserverAccounts(cfg config.DevserverConfig) ([]devserver.Account, error) {
	if len(cfg.Accounts) > 0 {
		out := make([]devserver.Account, len(cfg.Accounts))
		for i, a := range cfg.Accounts {
			out[i] = devserver.Account{
				Email:        a.Email,
				PasswordHash: a.PasswordHash,
				FullName:     a.FullName,
				IsAdmin:      a.IsAdmin,
			}
		}
		return out, nil
	}
	out := make([]devserver.Account, 0, len(demoAccounts))
	for _, d := range demoAccounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(d.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		out = append(out, devserver.Account{Email: d.email, PasswordHash: string(hash), FullName: d.name, IsAdmin: d.admin})
	}
	return out, nil
}

// announceDemoAccounts logs the demo emails and prints their passwords to w
// once, keeping secrets out of the log file.
func announceDemoAccounts(logger *slog.Logger, w io.Writer) {
	fmt.Fprintln(w, "No accounts configured. Demo logins:")
	for _, d := range demoAccounts {
		logger.Warn("no accounts configured, using demo account", "email", d.email)
		fmt.Fprintf(w, "  %s / %s\n", d.email, d.password)
	}
}

func runDevserver() {
	cfg := loadConfig()
	logger, closeLog := initLogger(cfg, true)
	defer closeLog()

	accounts, err := devserverAccounts(cfg.Devserver)
	if err != nil {
		fatal("%v", err)
	}
	if len(cfg.Devserver.Accounts) == 0 {
		announceDemoAccounts(logger, os.Stderr)
	}

	secret := cfg.Devserver.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("no jwtSecret configured, tokens will not survive a restart")
	}

	srv, err := devserver.New(devserver.Config{
		Addr:      cfg.Devserver.Addr,
		JWTSecret: secret,
		Accounts:  accounts,
	}, logger)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if err != nil {
			fatal("%v", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: shutdown: %v\n", err)
		}
	}
}
