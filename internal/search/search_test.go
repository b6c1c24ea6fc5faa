package search

import (
	"testing"
	"time"

	"github.com/ternmail/tern/internal/domain"
)

func msg(from, subject, preview string, date time.Time) *domain.Message {
	return &domain.Message{From: from, Subject: subject, Preview: preview, Date: date}
}

func TestParse_FreeTextMatchesAnyField(t *testing.T) {
	q := Parse("budget")
	date := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		m    *domain.Message
		want bool
	}{
		{"in from", msg("budget@example.com", "hi", "", date), true},
		{"in subject", msg("a@example.com", "Q3 Budget Review", "", date), true},
		{"in preview", msg("a@example.com", "hi", "see budget sheet", date), true},
		{"nowhere", msg("a@example.com", "hi", "nothing here", date), false},
	}
	for _, tc := range cases {
		if got := q.Match(tc.m, nil); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParse_FieldClauses(t *testing.T) {
	date := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	m := msg("Alice <alice@example.com>", "Invoice #42", "please pay", date)
	m.To = "bob@example.com"
	m.CC = "carol@example.com"

	cases := []struct {
		query string
		want  bool
	}{
		{"from:alice", true},
		{"from:bob", false},
		{"to:bob", true},
		{"to:carol", true}, // to: also searches cc
		{"to:dave", false},
		{"subject:invoice", true},
		{"subject:receipt", false},
		{"date:2026-03-15", true},
		{"date:2026-03-16", false},
		{"since:2026-03-15", true},
		{"since:2026-03-16", false},
		{"before:2026-03-16", true},
		{"before:2026-03-15", false},
		{"from:alice subject:invoice", true},
		{"from:alice subject:receipt", false},
	}
	for _, tc := range cases {
		if got := Parse(tc.query).Match(m, nil); got != tc.want {
			t.Errorf("%q: got %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestParse_AttachmentClauses(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	m := msg("a@example.com", "docs", "", date)
	atts := []domain.Attachment{
		{Index: 0, Filename: "report.pdf", MIME: "application/pdf"},
		{Index: 1, Filename: "diagram.png", MIME: "image/png"},
	}

	cases := []struct {
		query string
		want  bool
	}{
		{"att:report", true},
		{"file:diagram", true},
		{"filename:report.pdf", true},
		{"att:missing", false},
		{"type:pdf", true},
		{"type:image/png", true},
		{"mime:application/pdf", true},
		{"type:docx", false},
	}
	for _, tc := range cases {
		q := Parse(tc.query)
		if !q.NeedsAttachments() {
			t.Errorf("%q: NeedsAttachments() = false", tc.query)
		}
		if got := q.Match(m, atts); got != tc.want {
			t.Errorf("%q: got %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestParse_BadDateFallsBackToFreeText(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	m := msg("a@example.com", "meeting date:tomorrow maybe", "", date)

	q := Parse("date:tomorrow")
	if !q.Match(m, nil) {
		t.Error("unparsable date should match as free text against the subject")
	}
	if q.Match(msg("a@example.com", "unrelated", "", date), nil) {
		t.Error("free-text fallback matched an unrelated message")
	}
}

func TestParse_EmptyQueryMatchesAll(t *testing.T) {
	q := Parse("   ")
	if !q.Empty() {
		t.Error("whitespace-only query should be empty")
	}
	if !q.Match(msg("x@example.com", "anything", "", time.Now()), nil) {
		t.Error("empty query should match any message")
	}
}
