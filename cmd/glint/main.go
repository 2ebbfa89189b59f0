// ABOUTME: CLI client for the glint service: session and company management
// ABOUTME: Wires config, credential store, API clients, session manager, and company cache

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/glintapp/glint/internal/authapi"
	"github.com/glintapp/glint/internal/company"
	"github.com/glintapp/glint/internal/config"
	"github.com/glintapp/glint/internal/credstore"
	"github.com/glintapp/glint/internal/session"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	app, err := newApp()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
	defer app.close()

	args := os.Args[2:]
	switch cmd {
	case "login":
		err = app.cmdLogin(args)
	case "signup":
		err = app.cmdSignup(args)
	case "logout":
		err = app.cmdLogout()
	case "status":
		err = app.cmdStatus()
	case "refresh":
		err = app.cmdRefresh()
	case "company":
		err = app.cmdCompany(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`glint - client for the glint service

Usage:
  glint login <email> [-password <password>]
  glint signup -email <email> -password <password> [-name <name>] [-role owner|customer] [-company <name>]
  glint logout
  glint status
  glint refresh
  glint company
  glint company update [-name <name>] [-description <text>] [-address <addr>] [-phone <phone>]

Environment:
  GLINT_SERVER   API base URL (overrides config)
  GLINT_CONFIG   path to a YAML config file
`)
}

// app holds the wired-up client core. Everything is constructed once here and
// passed down; nothing reaches for ambient globals.
type app struct {
	store   credstore.Store
	manager *session.Manager
	cache   *company.Cache
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	store, err := credstore.NewSQLiteStore(cfg.Credentials.Path)
	if err != nil {
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	authClient := authapi.NewClient(cfg.Server.BaseURL)
	manager := session.NewManager(store, authClient, cfg.Server.VerifyTimeout, logger)

	companyClient := company.NewClient(cfg.Server.BaseURL)
	cache := company.NewCache(companyClient, manager, logger)

	return &app{store: store, manager: manager, cache: cache}, nil
}

func (a *app) close() {
	a.store.Close()
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if path := os.Getenv("GLINT_CONFIG"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if server := os.Getenv("GLINT_SERVER"); server != "" {
		cfg.Server.BaseURL = server
	}
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func (a *app) cmdLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	password := fs.String("password", "", "account password (prompted if empty)")

	var email string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		email = args[0]
		args = args[1:]
	}
	fs.Parse(args)

	if email == "" {
		return fmt.Errorf("usage: glint login <email> [-password <password>]")
	}
	if *password == "" {
		var err error
		*password, err = prompt("Password: ")
		if err != nil {
			return err
		}
	}

	ctx := context.Background()
	snap, err := a.manager.Login(ctx, email, *password)
	if err != nil {
		return err
	}
	a.cache.HandleSettlement(ctx, session.Settlement{Snapshot: snap})

	color.Green("Signed in as %s (%s)", snap.User.Email, snap.User.Role)
	return nil
}

func (a *app) cmdSignup(args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name")
	role := fs.String("role", authapi.RoleCustomer, "account role: owner or customer")
	companyName := fs.String("company", "", "company name (owner accounts)")
	fs.Parse(args)

	if *email == "" || *password == "" {
		return fmt.Errorf("usage: glint signup -email <email> -password <password>")
	}

	ctx := context.Background()
	snap, err := a.manager.Signup(ctx, authapi.SignupRequest{
		Email:       *email,
		Password:    *password,
		Name:        *name,
		Role:        *role,
		CompanyName: *companyName,
	})
	if err != nil {
		return err
	}
	a.cache.HandleSettlement(ctx, session.Settlement{Snapshot: snap})

	color.Green("Account created: %s (%s)", snap.User.Email, snap.User.Role)
	return nil
}

func (a *app) cmdLogout() error {
	ctx := context.Background()
	snap := a.manager.Logout(ctx)
	a.cache.HandleSettlement(ctx, session.Settlement{Snapshot: snap})

	fmt.Println("Signed out.")
	return nil
}

func (a *app) cmdStatus() error {
	snap := a.manager.Restore(context.Background())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if snap.Authenticated {
		fmt.Fprintf(w, "Status:\tsigned in\n")
		fmt.Fprintf(w, "User:\t%s\n", snap.User.Email)
		fmt.Fprintf(w, "Name:\t%s\n", snap.User.Name)
		fmt.Fprintf(w, "Role:\t%s\n", snap.User.Role)
	} else {
		fmt.Fprintf(w, "Status:\tsigned out\n")
	}
	return w.Flush()
}

func (a *app) cmdRefresh() error {
	ctx := context.Background()
	a.manager.Restore(ctx)

	snap, err := a.manager.RefreshAccessToken(ctx)
	if err != nil {
		return err
	}

	color.Green("Tokens refreshed for %s", snap.User.Email)
	return nil
}

func (a *app) cmdCompany(args []string) error {
	if len(args) > 0 && args[0] == "update" {
		return a.cmdCompanyUpdate(args[1:])
	}

	ctx := context.Background()
	snap := a.manager.Restore(ctx)
	if !snap.Authenticated {
		return fmt.Errorf("not signed in")
	}

	a.cache.HandleSettlement(ctx, session.Settlement{Snapshot: snap})

	state := a.cache.State()
	if state.Err != nil {
		return state.Err
	}
	if state.Company == nil {
		fmt.Println("No company profile for this account yet.")
		return nil
	}
	return printCompany(state.Company)
}

func (a *app) cmdCompanyUpdate(args []string) error {
	fs := flag.NewFlagSet("company update", flag.ExitOnError)
	name := fs.String("name", "", "company name")
	description := fs.String("description", "", "company description")
	address := fs.String("address", "", "street address")
	phone := fs.String("phone", "", "contact phone")
	fs.Parse(args)

	var patch company.Patch
	if *name != "" {
		patch.Name = name
	}
	if *description != "" {
		patch.Description = description
	}
	if *address != "" {
		patch.Address = address
	}
	if *phone != "" {
		patch.Phone = phone
	}
	if patch == (company.Patch{}) {
		return fmt.Errorf("nothing to update: pass at least one of -name, -description, -address, -phone")
	}

	ctx := context.Background()
	snap := a.manager.Restore(ctx)
	if !snap.Authenticated {
		return fmt.Errorf("not signed in")
	}
	a.cache.HandleSettlement(ctx, session.Settlement{Snapshot: snap})

	updated, err := a.cache.Update(ctx, patch)
	if err != nil {
		return err
	}

	color.Green("Company updated")
	return printCompany(updated)
}

func printCompany(c *company.Company) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", c.Description)
	}
	if c.Address != "" {
		fmt.Fprintf(w, "Address:\t%s\n", c.Address)
	}
	if c.Phone != "" {
		fmt.Fprintf(w, "Phone:\t%s\n", c.Phone)
	}
	return w.Flush()
}

func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
