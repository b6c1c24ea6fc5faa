package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternmail/tern/internal/config"
	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/provider/imapc"
	"github.com/ternmail/tern/internal/store"
	"github.com/ternmail/tern/internal/store/sqlite"
	"github.com/ternmail/tern/internal/syncengine"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tern",
		Short:         "Terminal mail client",
		Long:          "A terminal mail client that mirrors IMAP folders into a local store.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("tern %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.AddCommand(newSyncCmd())
	root.AddCommand(newMessagesCmd())
	root.AddCommand(newMessageCmd())
	root.AddCommand(newAccountsCmd())
	root.AddCommand(newFoldersCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if jsonFlag {
			printJSON(errorEnvelope(err))
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// openDB creates the data directory and opens the SQLite database.
func openDB() (*sqlite.DB, error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "tern.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveAccount materializes the configured account in the database and
// returns its row.
func resolveAccount(ctx context.Context, db *sqlite.DB, cfg *config.Config, name string) (*domain.Account, *config.AccountConfig, error) {
	acctCfg, err := cfg.Account(name)
	if err != nil {
		return nil, nil, err
	}
	acct := &domain.Account{Name: acctCfg.Name, Address: acctCfg.Address}
	if err := db.UpsertAccount(ctx, acct); err != nil {
		return nil, nil, err
	}
	return acct, acctCfg, nil
}

// dial connects to the account's IMAP endpoint. A password missing from the
// config is looked up in the OS keyring.
func dial(acctCfg *config.AccountConfig) (*imapc.Client, error) {
	password := acctCfg.IMAP.Password
	if password == "" {
		var err error
		password, err = store.NewKeyringPasswordStore().LoadPassword(acctCfg.Name)
		if err != nil {
			return nil, fmt.Errorf("no password configured for account %s: %w", acctCfg.Name, err)
		}
	}
	return imapc.Dial(imapc.Config{
		Addr:               acctCfg.IMAP.Addr(),
		Username:           acctCfg.IMAP.Username,
		Password:           password,
		InsecureSkipVerify: acctCfg.IMAP.InsecureSkipVerify,
	})
}

func newEngine(db *sqlite.DB, client *imapc.Client, accountID int64, cfg *config.Config) *syncengine.Engine {
	return syncengine.New(db, client, accountID, syncengine.Config{
		InitialSyncDays: cfg.Sync.InitialSyncDays,
		FetchChunkSize:  cfg.Sync.FetchChunkSize,
		MaxRetries:      cfg.Sync.MaxRetries,
	})
}

func syncInterval(cfg *config.Config) time.Duration {
	d, err := time.ParseDuration(cfg.Sync.Interval)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}
