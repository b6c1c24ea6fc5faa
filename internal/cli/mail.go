package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ternmail/tern/internal/config"
	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/render"
	"github.com/ternmail/tern/internal/search"
	"github.com/ternmail/tern/internal/store"
	"github.com/ternmail/tern/internal/store/sqlite"
)

func newMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Work with the local message mirror",
	}
	cmd.AddCommand(newMessagesListCmd())
	return cmd
}

func newMessagesListCmd() *cobra.Command {
	var (
		accountFlag string
		folderFlag  string
		queryFlag   string
		limitFlag   int
		unreadFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List messages",
		Long:  "List locally mirrored messages, optionally filtered by a search query.",
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

			var folderID int64
			if folderFlag != "" {
				folder, err := db.FolderByName(ctx, acct.ID, folderFlag)
				if err != nil {
					return fmt.Errorf("unknown folder %s: %w", folderFlag, err)
				}
				folderID = folder.ID
			}

			var msgs []domain.Message
			if queryFlag != "" {
				msgs, err = db.SearchMessages(ctx, acct.ID, folderID, search.Parse(queryFlag), limitFlag)
				if err != nil {
					return fmt.Errorf("failed to search messages: %w", err)
				}
			} else {
				msgs, err = db.ListMessages(ctx, store.ListMessageOptions{
					AccountID:  acct.ID,
					FolderID:   folderID,
					UnreadOnly: unreadFlag,
					Limit:      limitFlag,
				})
				if err != nil {
					return fmt.Errorf("failed to list messages: %w", err)
				}
			}

			if jsonFlag {
				return printResult(toJSONMessages(msgs))
			}

			if len(msgs) == 0 {
				fmt.Println("No messages found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "UNREAD\tFROM\tSUBJECT\tDATE\tID")
			for _, m := range msgs {
				unread := " "
				if m.Unread {
					unread = "*"
				}
				from := m.From
				if len(from) > 30 {
					from = from[:27] + "..."
				}
				subject := m.Subject
				if len(subject) > 50 {
					subject = subject[:47] + "..."
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					unread, from, subject,
					m.Date.Format("Jan 2, 2006"), m.ID,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&accountFlag, "account", "", "account name")
	cmd.Flags().StringVar(&folderFlag, "folder", "", "restrict to one folder")
	cmd.Flags().StringVar(&queryFlag, "query", "", `search query, e.g. "from:alice subject:invoice type:pdf"`)
	cmd.Flags().IntVar(&limitFlag, "limit", 25, "max messages to show")
	cmd.Flags().BoolVar(&unreadFlag, "unread", false, "only unread messages")
	return cmd
}

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Inspect or modify one message",
	}
	cmd.AddCommand(newMessageGetCmd())
	cmd.AddCommand(newMessageBodyCmd())
	cmd.AddCommand(newMessageMarkCmd())
	cmd.AddCommand(newMessageDeleteCmd())
	return cmd
}

func newMessageGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <message-id>",
		Short: "Show message metadata and attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			msg, err := db.GetMessage(ctx, id)
			if err != nil {
				return err
			}
			atts, err := db.AttachmentsFor(ctx, id)
			if err != nil {
				return err
			}

			if jsonFlag {
				return printResult(map[string]any{
					"message":     toJSONMessage(msg),
					"attachments": toJSONAttachments(atts),
				})
			}

			fmt.Printf("From:    %s\n", msg.From)
			if msg.To != "" {
				fmt.Printf("To:      %s\n", msg.To)
			}
			if msg.CC != "" {
				fmt.Printf("Cc:      %s\n", msg.CC)
			}
			fmt.Printf("Date:    %s\n", msg.Date.Format("Mon, 2 Jan 2006 15:04"))
			fmt.Printf("Subject: %s\n", msg.Subject)
			for _, a := range atts {
				fmt.Printf("Attachment %d: %s (%s, %d bytes)\n", a.Index, a.Filename, a.MIME, a.Size)
			}
			return nil
		},
	}
	return cmd
}

func newMessageBodyCmd() *cobra.Command {
	var (
		widthFlag  int
		htmlFlag   bool
		remoteFlag bool
		fetchFlag  bool
	)

	cmd := &cobra.Command{
		Use:   "body <message-id>",
		Short: "Show the rendered message body",
		Long:  "Render the message body as reflowed text (default) or prepared HTML, caching the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if _, err := db.GetRawBody(ctx, id); err != nil {
				if !fetchFlag {
					return fmt.Errorf("body not fetched yet; re-run with --fetch")
				}
				if err := fetchBody(cmd, db, cfg, id); err != nil {
					return err
				}
			}

			cache := render.NewCache(db, &render.MIMERenderer{})
			policy := store.RemoteBlock
			if remoteFlag || cfg.Render.AllowRemoteImages {
				policy = store.RemoteAllow
			}

			var body string
			if htmlFlag {
				body, err = cache.HTML(ctx, id, policy)
				if errors.Is(err, render.ErrNoHTML) {
					return fmt.Errorf("message %d has no html part", id)
				}
			} else {
				width := widthFlag
				if width <= 0 {
					width = cfg.Render.TextWidth
				}
				body, err = cache.Text(ctx, id, width)
			}
			if err != nil {
				return err
			}

			if jsonFlag {
				return printResult(map[string]string{"body": body})
			}
			fmt.Println(body)
			return nil
		},
	}

	cmd.Flags().IntVar(&widthFlag, "width", 0, "text width in columns (defaults to render.text_width)")
	cmd.Flags().BoolVar(&htmlFlag, "html", false, "emit prepared HTML instead of text")
	cmd.Flags().BoolVar(&remoteFlag, "remote", false, "allow remote image references")
	cmd.Flags().BoolVar(&fetchFlag, "fetch", false, "fetch the raw body from the server if missing")
	return cmd
}

func newMessageMarkCmd() *cobra.Command {
	var unreadFlag bool

	cmd := &cobra.Command{
		Use:   "mark <message-id>",
		Short: "Mark a message read or unread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SetMessageUnread(cmd.Context(), id, unreadFlag); err != nil {
				return err
			}
			if jsonFlag {
				return printResult(map[string]any{"id": id, "unread": unreadFlag})
			}
			state := "read"
			if unreadFlag {
				state = "unread"
			}
			fmt.Printf("Marked message %d %s\n", id, state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&unreadFlag, "unread", false, "mark unread instead of read")
	return cmd
}

func newMessageDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <message-id>",
		Short: "Delete a message from the local mirror",
		Long:  "Remove the message row; its body, attachments, and cache entries go with it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMessageID(args[0])
			if err != nil {
				return err
			}
			db, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.DeleteMessage(cmd.Context(), id); err != nil {
				return err
			}
			if jsonFlag {
				return printResult(map[string]any{"id": id, "deleted": true})
			}
			fmt.Printf("Deleted message %d\n", id)
			return nil
		},
	}
	return cmd
}

// fetchBody pulls the raw body from the server, stores it, and enriches the
// message row with recipients, preview, and attachment metadata.
func fetchBody(cmd *cobra.Command, db *sqlite.DB, cfg *config.Config, id int64) error {
	ctx := cmd.Context()
	msg, err := db.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return err
	}
	var acctName string
	for _, a := range accounts {
		if a.ID == msg.AccountID {
			acctName = a.Name
		}
	}
	acctCfg, err := cfg.Account(acctName)
	if err != nil {
		return err
	}

	client, err := dial(acctCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	folders, err := db.ListFolders(ctx, msg.AccountID)
	if err != nil {
		return err
	}
	var folderName string
	for _, f := range folders {
		if f.ID == msg.FolderID {
			folderName = f.Name
		}
	}
	if _, err := client.SelectFolder(ctx, folderName); err != nil {
		return err
	}

	raw, err := client.FetchBody(ctx, msg.UID)
	if err != nil {
		return err
	}
	if err := db.PutRawBody(ctx, id, raw); err != nil {
		return err
	}

	to, cc, preview, atts, err := render.ExtractMeta(raw)
	if err != nil {
		return err
	}
	if err := db.EnrichMessage(ctx, id, to, cc, preview); err != nil {
		return err
	}
	return db.SetAttachments(ctx, id, atts)
}

func parseMessageID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", arg)
	}
	return id, nil
}
