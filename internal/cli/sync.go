package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternmail/tern/internal/app"
	"github.com/ternmail/tern/internal/syncengine"
)

func newSyncCmd() *cobra.Command {
	var (
		accountFlag string
		folderFlag  string
		backfill    bool
		daysFlag    int
		waitFlag    bool
		timeoutSecs int
		watchFlag   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize folders with the mail server",
		Long:  "Fetch new message headers into the local store. With --backfill, extend the window of older messages instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			acct, acctCfg, err := resolveAccount(ctx, db, cfg, accountFlag)
			if err != nil {
				return err
			}
			client, err := dial(acctCfg)
			if err != nil {
				return err
			}
			defer client.Close()

			engine := newEngine(db, client, acct.ID, cfg)

			if watchFlag {
				app.NewWorker(engine, syncInterval(cfg)).Run(ctx)
				return nil
			}

			if folderFlag == "" {
				if backfill {
					return errors.New("--backfill requires --folder")
				}
				if err := engine.SyncAccount(ctx); err != nil {
					return err
				}
				return report("done")
			}

			folder, err := db.FolderByName(ctx, acct.ID, folderFlag)
			if err != nil {
				return fmt.Errorf("unknown folder %s (run a full sync first): %w", folderFlag, err)
			}

			var pass *syncengine.Pass
			if backfill {
				pass, err = engine.Backfill(ctx, folder, daysFlag)
			} else {
				pass, err = engine.SyncFolder(ctx, folder)
			}
			if err != nil {
				return err
			}

			if waitFlag {
				err = pass.Wait(time.Duration(timeoutSecs) * time.Second)
				if errors.Is(err, syncengine.ErrWaitTimeout) {
					// the pass may still finish; only the wait gave up
					return report("syncing")
				}
				if err != nil {
					return err
				}
				return report("done")
			}

			<-pass.Done()
			if err := pass.Err(); err != nil {
				return err
			}
			return report("done")
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account name (defaults to config default)")
	cmd.Flags().StringVar(&folderFlag, "folder", "", "sync a single folder")
	cmd.Flags().BoolVar(&backfill, "backfill", false, "fetch older messages below the current window")
	cmd.Flags().IntVar(&daysFlag, "days", 0, "backfill window in days (defaults to initial_sync_days)")
	cmd.Flags().BoolVar(&waitFlag, "wait", false, "bound the wait with --timeout-secs")
	cmd.Flags().IntVar(&timeoutSecs, "timeout-secs", 30, "wait deadline in seconds")
	cmd.Flags().BoolVar(&watchFlag, "watch", false, "keep syncing periodically until interrupted")
	return cmd
}

func report(status string) error {
	if jsonFlag {
		return printResult(map[string]string{"status": status})
	}
	fmt.Println("Sync:", status)
	return nil
}
