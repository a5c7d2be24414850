package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat"
	"wechat-reader/internal/features/wechat/models"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// globalOptions apply to every subcommand
type globalOptions struct {
	User int `short:"u" long:"user" default:"1" description:"acting user id"`
}

// cli carries the parsed global options and where subcommands run and print
type cli struct {
	globalOptions
	open func(ctx context.Context) (*environment, error)
	out  io.Writer
}

// environment is the database and feature a subcommand runs against
type environment struct {
	logger  *core.Logger
	db      *core.Database
	feature *wechat.Feature
}

func openEnvironment(ctx context.Context) (*environment, error) {
	config, err := core.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := core.NewLoggerWithLevel(config.Log.Level)
	return newEnvironment(ctx, logger, config.Database.Path, wechat.NewConfig(config))
}

// newEnvironment opens the database at dbPath and brings its schema up to date
func newEnvironment(ctx context.Context, logger *core.Logger, dbPath string, config *wechat.Config) (*environment, error) {
	db, err := core.OpenSQLite(dbPath, logger)
	if err != nil {
		return nil, err
	}

	feature, err := wechat.NewFeature(ctx, logger, db, config)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := feature.GetMigrationManager().Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &environment{logger: logger, db: db, feature: feature}, nil
}

func (e *environment) Close() {
	e.feature.Shutdown(context.Background())
	e.db.Close()
}

// run opens the environment, calls fn and prints its result as JSON
func (c *cli) run(fn func(ctx context.Context, env *environment) (any, error)) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := fn(ctx, env)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	encoder := json.NewEncoder(c.out)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(result)
}

type migrateCommand struct {
	cli *cli

	Status bool `long:"status" description:"show migration status instead of migrating"`
}

func (c *migrateCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		if c.Status {
			return env.feature.GetMigrationManager().Status(ctx)
		}
		// openEnvironment has already migrated
		return map[string]string{"status": "migrated"}, nil
	})
}

type setCookieCommand struct {
	cli *cli

	Cookie string `long:"cookie" required:"true" description:"session cookie copied from mp.weixin.qq.com"`
	Token  string `long:"token" description:"access token, when the cookie does not carry one"`
}

func (c *setCookieCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		return env.feature.GetCredentialService().SetSessionCookie(ctx, c.cli.User, c.Cookie, c.Token)
	})
}

type searchCommand struct {
	cli *cli

	Query string `short:"q" long:"query" required:"true" description:"account name to search for"`
}

func (c *searchCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		return env.feature.GetOrchestrator().SearchAccounts(ctx, c.cli.User, c.Query)
	})
}

// accountOptions select the account and narrow the run
type accountOptions struct {
	Account int    `short:"a" long:"account" required:"true" description:"account id"`
	Name    string `long:"name" description:"display name used as author fallback"`
	Fakeid  string `long:"fakeid" description:"override the stored fakeid"`
	Query   string `long:"query" description:"title filter passed upstream"`
	Limit   int    `short:"n" long:"limit" description:"maximum number of articles"`
}

func (o *accountOptions) fetchOptions() models.FetchOptions {
	return models.FetchOptions{Fakeid: o.Fakeid, Query: o.Query, Limit: o.Limit}
}

type fetchCommand struct {
	cli *cli
	accountOptions
}

func (c *fetchCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		return env.feature.GetOrchestrator().FetchAccount(ctx, c.Account, c.cli.User, c.Name, c.fetchOptions())
	})
}

type previewCommand struct {
	cli *cli
	accountOptions
}

func (c *previewCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		return env.feature.GetOrchestrator().PreviewAccount(ctx, c.Account, c.cli.User, c.Name, c.fetchOptions())
	})
}

type importCommand struct {
	cli *cli

	URL      string `long:"url" required:"true" description:"article url"`
	Account  int    `short:"a" long:"account" description:"account id to file the article under"`
	Category int    `short:"c" long:"category" description:"category id"`
}

func (c *importCommand) Execute([]string) error {
	return c.cli.run(func(ctx context.Context, env *environment) (any, error) {
		req := &models.ImportRequest{UserID: c.cli.User, URL: c.URL}
		if c.Account > 0 {
			req.AccountID = &c.Account
		}
		if c.Category > 0 {
			req.CategoryID = &c.Category
		}
		return env.feature.GetOrchestrator().ImportByURL(ctx, req)
	})
}

// newParser registers every subcommand against c
func newParser(c *cli) *flags.Parser {
	parser := flags.NewParser(&c.globalOptions, flags.Default)
	parser.Name = "wxctl"

	commands := []struct {
		name, short string
		data        any
	}{
		{"migrate", "apply database migrations", &migrateCommand{cli: c}},
		{"set-cookie", "store the session cookie of a user", &setCookieCommand{cli: c}},
		{"search", "search official accounts by name", &searchCommand{cli: c}},
		{"fetch", "import new articles of an account", &fetchCommand{cli: c}},
		{"preview", "list what a fetch would import", &previewCommand{cli: c}},
		{"import", "import one article by url", &importCommand{cli: c}},
	}
	for _, command := range commands {
		if _, err := parser.AddCommand(command.name, command.short, "", command.data); err != nil {
			panic(err)
		}
	}
	return parser
}

func main() {
	godotenv.Load()

	parser := newParser(&cli{open: openEnvironment, out: os.Stdout})
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		if _, ok := err.(*flags.Error); !ok {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
