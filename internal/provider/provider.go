package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAuth marks a fatal authentication failure. It is never retried and the
// sync engine surfaces it without mutating any state.
var ErrAuth = errors.New("authentication failed")

// NetworkError wraps a transient network or protocol failure. The sync
// engine retries these per chunk with bounded backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient failure worth retrying.
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// FolderStatus is the protocol-level cursor state of a selected folder.
type FolderStatus struct {
	UIDValidity uint32
	UIDNext     uint32
}

// FolderInfo describes one remote folder from a listing.
type FolderInfo struct {
	Name   string
	Unread int
}

// Header is the summary of one remote message as fetched in a header pass.
type Header struct {
	UID     uint32
	Date    time.Time
	From    string
	Subject string
	Unread  bool
}

// FlagUpdate carries the current unread state of one remote UID.
type FlagUpdate struct {
	UID    uint32
	Unread bool
}

// Client is the narrow protocol surface the sync engine consumes. Wire-level
// IMAP parsing lives entirely behind this interface.
type Client interface {
	// SelectFolder opens the named folder and returns its cursor state.
	// Returns ErrAuth on authentication failure, a NetworkError otherwise.
	SelectFolder(ctx context.Context, name string) (FolderStatus, error)

	// ListFolders enumerates selectable remote folders with unread counts.
	ListFolders(ctx context.Context) ([]FolderInfo, error)

	// FetchHeaders fetches message summaries for the inclusive UID range.
	FetchHeaders(ctx context.Context, lo, hi uint32) ([]Header, error)

	// FetchFlags fetches current flags for the inclusive UID range.
	FetchFlags(ctx context.Context, lo, hi uint32) ([]FlagUpdate, error)

	// FetchBody fetches the full raw RFC 822 body for one UID.
	FetchBody(ctx context.Context, uid uint32) ([]byte, error)

	// SearchSince returns the lowest UID among messages dated at or after
	// since. ok is false when the window contains no messages.
	SearchSince(ctx context.Context, since time.Time) (uid uint32, ok bool, err error)

	// SearchBefore returns the UIDs of messages dated within [since, before),
	// sorted ascending. Used by backfill.
	SearchBefore(ctx context.Context, since, before time.Time) ([]uint32, error)

	Close() error
}
