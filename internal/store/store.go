package store

import (
	"context"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/provider"
	"github.com/ternmail/tern/internal/search"
)

// FolderSyncState is the persisted sync cursor for one folder. It is mutated
// exclusively by the sync engine, inside the transactional commit steps.
type FolderSyncState struct {
	FolderID    int64
	UIDValidity uint32
	UIDNext     uint32
	LastSeenUID uint32
	LastSyncTS  int64 // Unix timestamp
	OldestTS    int64 // Unix timestamp of the oldest mirrored message
}

// ListMessageOptions configures message listing queries.
type ListMessageOptions struct {
	AccountID  int64
	FolderID   int64 // 0 means all folders
	UnreadOnly bool
	Limit      int
}

// RemotePolicy selects how remote image references in HTML bodies are
// treated. Each policy keys its own cache rows.
type RemotePolicy string

const (
	RemoteAllow RemotePolicy = "allowed"
	RemoteBlock RemotePolicy = "blocked"
)

// TileKey identifies one rasterized tile set. Every field is part of the
// identity; in particular TileHeightPx must never be dropped from the key or
// the two view geometries silently overwrite each other.
type TileKey struct {
	MessageID    int64
	WidthPx      int
	TileHeightPx int
	Theme        string
	Policy       RemotePolicy
}

// Tile is one stored rasterized row-segment of a rendered message body.
type Tile struct {
	Index int
	PNG   []byte
}

// Store defines the persistence interface for the application.
type Store interface {
	// Accounts
	UpsertAccount(ctx context.Context, account *domain.Account) error
	GetAccountByName(ctx context.Context, name string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// Folders
	UpsertFolder(ctx context.Context, folder *domain.Folder) (int64, error)
	FolderByName(ctx context.Context, accountID int64, name string) (*domain.Folder, error)
	ListFolders(ctx context.Context, accountID int64) ([]domain.Folder, error)

	// Messages
	GetMessage(ctx context.Context, id int64) (*domain.Message, error)
	ListMessages(ctx context.Context, opts ListMessageOptions) ([]domain.Message, error)
	SearchMessages(ctx context.Context, accountID, folderID int64, q search.Query, limit int) ([]domain.Message, error)
	DeleteMessage(ctx context.Context, id int64) error
	SetMessageUnread(ctx context.Context, id int64, unread bool) error
	EnrichMessage(ctx context.Context, id int64, to, cc, preview string) error

	// Raw bodies and attachments
	GetRawBody(ctx context.Context, messageID int64) ([]byte, error)
	PutRawBody(ctx context.Context, messageID int64, raw []byte) error
	SetAttachments(ctx context.Context, messageID int64, atts []domain.Attachment) error
	AttachmentsFor(ctx context.Context, messageID int64) ([]domain.Attachment, error)

	// Sync cursor. GetFolderSyncState returns nil when no row exists.
	GetFolderSyncState(ctx context.Context, folderID int64) (*FolderSyncState, error)
	ResetCursor(ctx context.Context, state *FolderSyncState) error
	CommitHeaderChunk(ctx context.Context, accountID, folderID int64, msgs []domain.Message, lastSeenUID uint32) error
	CommitBackfillChunk(ctx context.Context, accountID, folderID int64, msgs []domain.Message, oldestTS int64) error
	FinalizeSync(ctx context.Context, folderID int64, uidNext uint32, syncTS int64) error
	ApplyFlagUpdates(ctx context.Context, folderID int64, updates []provider.FlagUpdate) error

	// Render cache tiers
	GetCacheText(ctx context.Context, messageID int64, widthCols int) (string, bool, error)
	PutCacheText(ctx context.Context, messageID int64, widthCols int, text string) error
	GetCacheHTML(ctx context.Context, messageID int64, policy RemotePolicy) (string, bool, error)
	PutCacheHTML(ctx context.Context, messageID int64, policy RemotePolicy, html string) error
	GetCacheTiles(ctx context.Context, key TileKey) ([]Tile, error)
	PutCacheTiles(ctx context.Context, key TileKey, tiles []Tile) error

	// Lifecycle
	Close() error
}
