package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/search"
)

func TestSearchMessages_FieldConjunction(t *testing.T) {
	db := newTestDB(t)
	acct := seedAccount(t, db)
	folderID := seedFolder(t, db, acct.ID, "INBOX")
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	hit := seedMessage(t, db, acct.ID, folderID, 1, domain.Message{
		From: "alice@example.com", Subject: "Invoice April", Date: base,
	})
	if err := db.SetAttachments(ctx, hit, []domain.Attachment{
		{MessageID: hit, Index: 0, Filename: "invoice.pdf", MIME: "application/pdf"},
	}); err != nil {
		t.Fatalf("SetAttachments: %v", err)
	}

	// same sender, wrong attachment type
	miss1 := seedMessage(t, db, acct.ID, folderID, 2, domain.Message{
		From: "alice@example.com", Subject: "Invoice May", Date: base.Add(time.Hour),
	})
	if err := db.SetAttachments(ctx, miss1, []domain.Attachment{
		{MessageID: miss1, Index: 0, Filename: "scan.jpg", MIME: "image/jpeg"},
	}); err != nil {
		t.Fatalf("SetAttachments: %v", err)
	}
	// wrong sender
	seedMessage(t, db, acct.ID, folderID, 3, domain.Message{
		From: "bob@example.com", Subject: "Invoice June", Date: base.Add(2 * time.Hour),
	})

	q := search.Parse("from:alice subject:invoice type:pdf")
	got, err := db.SearchMessages(ctx, acct.ID, folderID, q, 0)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(got) != 1 || got[0].ID != hit {
		t.Fatalf("got %v, want only message %d", got, hit)
	}
}

func TestSearchMessages_FreeTextOrderedDateDescending(t *testing.T) {
	db := newTestDB(t)
	acct := seedAccount(t, db)
	folderID := seedFolder(t, db, acct.ID, "INBOX")
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	seedMessage(t, db, acct.ID, folderID, 1, domain.Message{
		From: "team@example.com", Subject: "standup notes", Date: base,
	})
	seedMessage(t, db, acct.ID, folderID, 2, domain.Message{
		From: "team@example.com", Subject: "weekly report", Preview: "notes attached", Date: base.Add(time.Hour),
	})
	seedMessage(t, db, acct.ID, folderID, 3, domain.Message{
		From: "other@example.com", Subject: "lunch", Date: base.Add(2 * time.Hour),
	})

	got, err := db.SearchMessages(ctx, acct.ID, folderID, search.Parse("notes"), 0)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if !got[0].Date.After(got[1].Date) {
		t.Errorf("results not date-descending: %v then %v", got[0].Date, got[1].Date)
	}
}
