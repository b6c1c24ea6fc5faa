package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List known accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, err := db.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(toJSONAccounts(accounts))
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts. Add one to the config file and run 'tern sync'.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tADDRESS")
			for _, a := range accounts {
				fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, a.Name, a.Address)
			}
			return w.Flush()
		},
	})
	return cmd
}

func newFoldersCmd() *cobra.Command {
	var accountFlag string

	list := &cobra.Command{
		Use:   "list",
		Short: "List folders with unread counts",
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
			acct, _, err := resolveAccount(ctx, db, cfg, accountFlag)
			if err != nil {
				return err
			}

			folders, err := db.ListFolders(ctx, acct.ID)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(toJSONFolders(folders))
			}
			if len(folders) == 0 {
				fmt.Println("No folders yet. Run 'tern sync' first.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tUNREAD")
			for _, f := range folders {
				fmt.Fprintf(w, "%s\t%d\n", f.Name, f.Unread)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&accountFlag, "account", "", "account name")

	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Work with folders",
	}
	cmd.AddCommand(list)
	return cmd
}
