package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/applog"
	"github.com/zsprackett/chargewatch/internal/auth"
	"github.com/zsprackett/chargewatch/internal/config"
	"github.com/zsprackett/chargewatch/internal/db"
	"github.com/zsprackett/chargewatch/internal/refresh"
	"github.com/zsprackett/chargewatch/internal/ui"
)

const usage = `usage: chargewatch [command]

  (none)          open the dashboard
  login <email>   sign in and save the access token
  logout          forget the saved token
  watch           print live updates without the dashboard
  devserver       run the local platform simulator
  hashpw          print a bcrypt hash for devserver.accounts`

func openDB() (*db.DB, error) {
	dbPath := config.DBPath()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func loadConfig() config.Config {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load config: %v\n", err)
		cfg = config.Defaults()
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config: %v", err)
	}
	return cfg
}

// initLogger falls back to the default stderr logger when the log directory
// is unusable. The returned func closes the log file.
func initLogger(cfg config.Config, stderr bool) (*slog.Logger, func()) {
	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Stderr:   stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not init log file: %v\n", err)
		return slog.Default(), func() {}
	}
	return logger, func() { closer.Close() }
}

// readPassword prompts on the terminal, or reads one line when stdin is
// not a terminal.
func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Print(prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "":
		runDashboard()
	case "login":
		if len(os.Args) < 3 {
			fatal("usage: chargewatch login <email>")
		}
		runLogin(os.Args[2])
	case "logout":
		runLogout()
	case "watch":
		runWatch()
	case "devserver":
		runDevserver()
	case "hashpw":
		runHashPassword()
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func runLogin(email string) {
	cfg := loadConfig()
	pw, err := readPassword(fmt.Sprintf("Password for %s: ", email))
	if err != nil {
		fatal("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	resp, err := api.New(cfg.APIBaseURL, nil).SignIn(ctx, email, pw)
	if err != nil {
		fatal("sign in failed: %v", err)
	}

	store, err := openDB()
	if err != nil {
		fatal("could not open database: %v", err)
	}
	defer store.Close()
	if err := store.SaveCredential(&db.Credential{
		Email:    resp.User.Email,
		Token:    resp.AccessToken,
		FullName: resp.User.FullName,
		IsAdmin:  resp.User.IsAdmin,
		SavedAt:  time.Now(),
	}); err != nil {
		fatal("save credential: %v", err)
	}
	role := "customer"
	if resp.User.IsAdmin {
		role = "operator"
	}
	fmt.Printf("Signed in as %s (%s)\n", resp.User.FullName, role)
}

func runLogout() {
	store, err := openDB()
	if err != nil {
		fatal("could not open database: %v", err)
	}
	defer store.Close()
	if err := store.DeleteCredential(); err != nil {
		fatal("%v", err)
	}
	fmt.Println("Signed out")
}

func runHashPassword() {
	pw, err := readPassword("Password: ")
	if err != nil {
		fatal("%v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(string(hash))
}

// credential returns the signed-in user. With $CHARGEWATCH_TOKEN set and
// nothing saved, the user is looked up from the API.
func credential(cfg config.Config, store *db.DB, tokens auth.Provider) (*db.Credential, error) {
	if _, ok := tokens.Token(); !ok {
		return nil, errors.New("not signed in; run chargewatch login <email>")
	}
	if os.Getenv(auth.EnvToken) == "" {
		if cred, err := store.GetCredential(); err != nil || cred != nil {
			return cred, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	me, err := api.New(cfg.APIBaseURL, tokens).Me(ctx)
	if err != nil {
		return nil, err
	}
	return &db.Credential{Email: me.Email, FullName: me.FullName, IsAdmin: me.IsAdmin}, nil
}

func runDashboard() {
	cfg := loadConfig()
	logger, closeLog := initLogger(cfg, false)
	defer closeLog()

	store, err := openDB()
	if err != nil {
		fatal("could not open database: %v", err)
	}
	defer store.Close()

	tokens := auth.FromEnv(auth.NewStoreProvider(store, logger))
	cred, err := credential(cfg, store, tokens)
	if err != nil {
		fatal("%v", err)
	}

	app := ui.NewApp(api.New(cfg.APIBaseURL, tokens), store, cred, logger)
	l := startLive(cfg, store, tokens, logger, app, app)
	l.manager.Subscribe(app)
	app.SetLive(l.manager, l.dispatcher)
	defer l.stop()

	if err := app.Run(); err != nil {
		logger.Error("dashboard", "err", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func runWatch() {
	cfg := loadConfig()
	logger, closeLog := initLogger(cfg, true)
	defer closeLog()

	store, err := openDB()
	if err != nil {
		fatal("could not open database: %v", err)
	}
	defer store.Close()

	tokens := auth.FromEnv(auth.NewStoreProvider(store, logger))
	if _, ok := tokens.Token(); !ok {
		fatal("not signed in; run chargewatch login <email>")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	view := refresh.InvalidatorFunc(func() {
		fmt.Printf("%s  view invalidated\n", time.Now().Format(time.TimeOnly))
	})
	l := startLive(cfg, store, tokens, logger, printer{}, view)
	defer l.stop()

	metricsSrv := serveMetrics(cfg.Metrics.Addr, logger)

	<-ctx.Done()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

type printer struct{}

func (printer) Toast(t refresh.Toast) {
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	fmt.Printf("%s  %s\n", at.Local().Format(time.TimeOnly), t.Message)
}
