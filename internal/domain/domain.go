package domain

import "time"

// Account is a configured mail identity. Rows are created from configuration
// at startup and are immutable for the rest of the session.
type Account struct {
	ID      int64
	Name    string
	Address string
}

// Folder mirrors one remote mailbox folder. The unread counter is always
// recomputed from message rows, never incremented in place.
type Folder struct {
	ID        int64
	AccountID int64
	Name      string
	Unread    int
}

// Message is the locally mirrored summary of one remote message. Core fields
// are immutable once fetched; only Unread toggles under user action. UID is
// the remote protocol UID within the owning folder (0 for local-only rows
// such as drafts).
type Message struct {
	ID        int64
	AccountID int64
	FolderID  int64
	UID       uint32
	Date      time.Time
	From      string
	To        string
	CC        string
	Subject   string
	Unread    bool
	Preview   string
}

// Attachment is the stored metadata of one MIME attachment, extracted when
// the raw body is fetched.
type Attachment struct {
	MessageID int64
	Index     int
	Filename  string
	MIME      string
	Size      int64
}
