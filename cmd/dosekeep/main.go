package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/dosekeep/internal/cli"
	"github.com/julianstephens/dosekeep/internal/cli/backups"
	"github.com/julianstephens/dosekeep/internal/cli/onboard"
	"github.com/julianstephens/dosekeep/internal/cli/products"
	"github.com/julianstephens/dosekeep/internal/cli/state"
	"github.com/julianstephens/dosekeep/internal/cli/system"
	"github.com/julianstephens/dosekeep/internal/config"
	"github.com/julianstephens/dosekeep/internal/constants"
	apperrors "github.com/julianstephens/dosekeep/internal/errors"
	"github.com/julianstephens/dosekeep/internal/logger"
)

type CLI struct {
	Version      kong.VersionFlag
	ConfigDir    string `help:"Directory holding config.yaml, logs, backups and the lock file." default:"~/.config/dosekeep" env:"DOSEKEEP_CONFIG_DIR"`
	Backend      string `help:"Storage backend: file, sqlite, postgres or memory. Overrides the config file."`
	Path         string `help:"State directory (file) or database file (sqlite). Overrides the config file."`
	Timezone     string `help:"IANA timezone calendar days are counted in. Defaults to the system zone."`
	DBConnection string `name:"db-connection" help:"PostgreSQL connection string. Credentials must NOT be embedded; use DOSEKEEP_DB_CONNECTION or the OS keyring for passwords."`
	Debug        bool   `help:"Log to stderr at debug level."`
	Metrics      bool   `help:"Collect metrics for this run (shown by doctor)."`

	Init    system.InitCmd     `cmd:"" help:"Initialize dosekeep storage."`
	Show    state.ShowCmd      `cmd:"" help:"Show the stored record."`
	Status  state.StatusCmd    `cmd:"" help:"Show today's streak status."`
	Set     state.SetCmd       `cmd:"" help:"Set one or more fields."`
	Checkin state.CheckinCmd   `cmd:"" help:"Record today's dose."`
	History state.HistoryCmd   `cmd:"" help:"List check-in days with their ratings."`
	Onboard onboard.OnboardCmd `cmd:"" help:"Answer the setup questionnaire."`
	Reset   state.ResetCmd     `cmd:"" help:"Delete all stored data and start over."`
	Doctor  system.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
	Diag    system.DebugCmd    `cmd:"" name:"debug" help:"Inspect raw storage." hidden:""`
	Tui     system.TuiCmd      `cmd:"" help:"Launch the interactive dashboard." default:"1"`
	Product struct {
		Add  products.ProductAddCmd  `cmd:"" help:"Add a custom product."`
		List products.ProductListCmd `cmd:"" help:"List your products."`
	} `cmd:"" help:"Manage your supplement stack."`
	Backup struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage backups."`
	DB struct {
		Keyring struct {
			Set    system.KeyringSetCmd    `cmd:"" help:"Store the connection string in the OS keyring."`
			Get    system.KeyringGetCmd    `cmd:"" help:"Show the stored connection string (password masked)."`
			Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the connection string from the OS keyring."`
			Status system.KeyringStatusCmd `cmd:"" help:"Check whether the OS keyring is available."`
		} `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
	} `cmd:"" name:"db" help:"Database connection settings."`
}

// apply layers explicitly set flags over the loaded config.
func (c *CLI) apply(cfg *config.Config) {
	if c.Backend != "" {
		cfg.Backend = c.Backend
	}
	if c.Path != "" {
		cfg.Path = c.Path
	}
	if c.Timezone != "" {
		cfg.Timezone = c.Timezone
	}
	if c.Debug {
		cfg.Debug = true
	}
	if c.Metrics {
		cfg.Metrics = true
	}
}

func newParser(c *CLI, options ...kong.Option) (*kong.Kong, error) {
	return kong.New(c, append([]kong.Option{
		kong.Name(constants.AppName),
		kong.Description("Supplement habit tracker: daily check-ins, streaks and reminders setup"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{"version": constants.Version},
	}, options...)...)
}

// needsStore reports whether command works on the app state. Keyring
// management must run even when the database is unreachable.
func needsStore(command string) bool {
	return !strings.HasPrefix(command, "db keyring")
}

// run executes one command line against a freshly opened store.
func run(ctx context.Context, args []string, stdout io.Writer, stdin io.Reader, options ...kong.Option) error {
	var c CLI
	parser, err := newParser(&c, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.ConfigDir)
	if err != nil {
		return err
	}
	c.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: cfg.Dir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	command := kctx.Command()
	if !needsStore(command) {
		return kctx.Run(&cli.Context{Ctx: ctx, Config: cfg, Out: stdout, In: stdin})
	}

	backend, source, err := cli.NewBackend(cfg, c.DBConnection)
	if err != nil {
		return err
	}
	appCtx, err := cli.NewContext(cfg, backend)
	if err != nil {
		return err
	}
	appCtx.Ctx = ctx
	appCtx.Out = stdout
	appCtx.In = stdin
	appCtx.ConnSource = source
	if source != "" {
		logger.Debug("Resolved database connection", "source", source)
	}

	// The init command creates storage; everything else requires it.
	err = appCtx.Open(ctx, command == "init")
	if err == nil {
		err = kctx.Run(appCtx)
	}
	return errors.Join(err, appCtx.Close())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stdin)
	stop()
	apperrors.Fatal(err)
}
