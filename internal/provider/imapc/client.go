// Package imapc adapts an IMAP connection to the provider.Client interface.
package imapc

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/ternmail/tern/internal/provider"
)

// Config holds the connection parameters for one IMAP account.
type Config struct {
	Addr     string // host:port, e.g. imap.example.com:993
	Username string
	Password string
	// InsecureSkipVerify disables certificate checks. Useful against
	// self-signed bridges like protonmail-bridge on localhost.
	InsecureSkipVerify bool
}

// Client wraps an emersion/go-imap connection. Methods are not safe for
// concurrent use; the sync engine serializes access per folder.
type Client struct {
	c *client.Client
}

// Dial connects over TLS and logs in. A rejected login surfaces as
// provider.ErrAuth; transport failures come back as provider.NetworkError.
func Dial(cfg Config) (*Client, error) {
	var tlsCfg *tls.Config
	if cfg.InsecureSkipVerify {
		tlsCfg = &tls.Config{InsecureSkipVerify: true}
	}
	c, err := client.DialTLS(cfg.Addr, tlsCfg)
	if err != nil {
		return nil, &provider.NetworkError{Op: "dial", Err: err}
	}
	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("%w: %v", provider.ErrAuth, err)
	}
	return &Client{c: c}, nil
}

func (cl *Client) SelectFolder(ctx context.Context, name string) (provider.FolderStatus, error) {
	if err := ctx.Err(); err != nil {
		return provider.FolderStatus{}, err
	}
	mbox, err := cl.c.Select(name, true)
	if err != nil {
		return provider.FolderStatus{}, &provider.NetworkError{Op: "select " + name, Err: err}
	}
	return provider.FolderStatus{
		UIDValidity: mbox.UidValidity,
		UIDNext:     mbox.UidNext,
	}, nil
}

func (cl *Client) ListFolders(ctx context.Context) ([]provider.FolderInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- cl.c.List("", "*", mailboxes)
	}()

	var names []string
	for mb := range mailboxes {
		names = append(names, mb.Name)
	}
	if err := <-done; err != nil {
		return nil, &provider.NetworkError{Op: "list folders", Err: err}
	}

	var folders []provider.FolderInfo
	for _, name := range names {
		status, err := cl.c.Status(name, []imap.StatusItem{imap.StatusUnseen})
		if err != nil {
			return nil, &provider.NetworkError{Op: "status " + name, Err: err}
		}
		folders = append(folders, provider.FolderInfo{
			Name:   name,
			Unread: int(status.Unseen),
		})
	}
	return folders, nil
}

func (cl *Client) FetchHeaders(ctx context.Context, lo, hi uint32) ([]provider.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lo, hi)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- cl.c.UidFetch(seqSet, items, messages)
	}()

	var headers []provider.Header
	for msg := range messages {
		headers = append(headers, headerFromMessage(msg))
	}
	if err := <-done; err != nil {
		return nil, &provider.NetworkError{Op: fmt.Sprintf("fetch headers %d:%d", lo, hi), Err: err}
	}
	return headers, nil
}

func (cl *Client) FetchFlags(ctx context.Context, lo, hi uint32) ([]provider.FlagUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lo, hi)
	items := []imap.FetchItem{imap.FetchFlags, imap.FetchUid}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- cl.c.UidFetch(seqSet, items, messages)
	}()

	var updates []provider.FlagUpdate
	for msg := range messages {
		updates = append(updates, provider.FlagUpdate{
			UID:    msg.Uid,
			Unread: !hasFlag(msg.Flags, imap.SeenFlag),
		})
	}
	if err := <-done; err != nil {
		return nil, &provider.NetworkError{Op: fmt.Sprintf("fetch flags %d:%d", lo, hi), Err: err}
	}
	return updates, nil
}

func (cl *Client) FetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- cl.c.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	var raw []byte
	if msg != nil {
		if body := msg.GetBody(section); body != nil {
			var err error
			raw, err = io.ReadAll(body)
			if err != nil {
				return nil, &provider.NetworkError{Op: fmt.Sprintf("read body %d", uid), Err: err}
			}
		}
	}
	for range messages {
	}
	if err := <-done; err != nil {
		return nil, &provider.NetworkError{Op: fmt.Sprintf("fetch body %d", uid), Err: err}
	}
	if raw == nil {
		return nil, &provider.NetworkError{Op: fmt.Sprintf("fetch body %d", uid), Err: fmt.Errorf("server returned no body")}
	}
	return raw, nil
}

func (cl *Client) SearchSince(ctx context.Context, since time.Time) (uint32, bool, error) {
	uids, err := cl.search(ctx, since, time.Time{})
	if err != nil {
		return 0, false, err
	}
	if len(uids) == 0 {
		return 0, false, nil
	}
	lowest := uids[0]
	for _, uid := range uids[1:] {
		if uid < lowest {
			lowest = uid
		}
	}
	return lowest, true, nil
}

func (cl *Client) SearchBefore(ctx context.Context, since, before time.Time) ([]uint32, error) {
	return cl.search(ctx, since, before)
}

func (cl *Client) search(ctx context.Context, since, before time.Time) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	criteria := imap.NewSearchCriteria()
	criteria.Since = since
	if !before.IsZero() {
		criteria.Before = before
	}
	uids, err := cl.c.UidSearch(criteria)
	if err != nil {
		return nil, &provider.NetworkError{Op: "uid search", Err: err}
	}
	return uids, nil
}

func (cl *Client) Close() error {
	return cl.c.Logout()
}

func headerFromMessage(msg *imap.Message) provider.Header {
	h := provider.Header{
		UID:    msg.Uid,
		Unread: !hasFlag(msg.Flags, imap.SeenFlag),
	}
	if env := msg.Envelope; env != nil {
		h.Subject = env.Subject
		h.Date = env.Date
		if len(env.From) > 0 {
			h.From = formatAddress(env.From[0])
		}
	}
	return h
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func formatAddress(addr *imap.Address) string {
	if addr == nil {
		return ""
	}
	email := addr.MailboxName + "@" + addr.HostName
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s>", addr.PersonalName, email)
	}
	return email
}
