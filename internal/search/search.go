// Package search parses query strings into predicate clauses evaluated
// against locally mirrored message metadata.
package search

import (
	"strings"
	"time"

	"github.com/ternmail/tern/internal/domain"
)

type clauseKind int

const (
	clauseFree clauseKind = iota
	clauseFrom
	clauseTo
	clauseSubject
	clauseDate
	clauseSince
	clauseBefore
	clauseAttachment
	clauseType
)

type clause struct {
	kind clauseKind
	text string    // lowercased needle for substring clauses
	day  time.Time // UTC midnight for date clauses
}

// Query is a parsed search expression. Clauses are conjunctive; the zero
// Query matches every message.
type Query struct {
	clauses []clause
}

// Parse splits a query string into whitespace-separated tokens. A token of
// the form field:value becomes a field predicate; anything else is free text
// matched against from, subject and preview. A date token whose value does
// not parse as an ISO date falls back to free text rather than erroring.
func Parse(input string) Query {
	var q Query
	for _, tok := range strings.Fields(input) {
		q.clauses = append(q.clauses, parseToken(tok))
	}
	return q
}

func parseToken(tok string) clause {
	field, value, ok := strings.Cut(tok, ":")
	if !ok || value == "" {
		return clause{kind: clauseFree, text: strings.ToLower(tok)}
	}
	needle := strings.ToLower(value)
	switch strings.ToLower(field) {
	case "from":
		return clause{kind: clauseFrom, text: needle}
	case "to":
		return clause{kind: clauseTo, text: needle}
	case "subject":
		return clause{kind: clauseSubject, text: needle}
	case "att", "file", "filename":
		return clause{kind: clauseAttachment, text: needle}
	case "type", "mime":
		return clause{kind: clauseType, text: needle}
	case "date", "since", "before":
		day, err := time.ParseInLocation(time.DateOnly, value, time.UTC)
		if err != nil {
			return clause{kind: clauseFree, text: strings.ToLower(tok)}
		}
		switch strings.ToLower(field) {
		case "date":
			return clause{kind: clauseDate, day: day}
		case "since":
			return clause{kind: clauseSince, day: day}
		default:
			return clause{kind: clauseBefore, day: day}
		}
	}
	return clause{kind: clauseFree, text: strings.ToLower(tok)}
}

// Empty reports whether the query has no clauses.
func (q Query) Empty() bool {
	return len(q.clauses) == 0
}

// NeedsAttachments reports whether evaluating the query requires the
// message's attachment list. Callers can skip loading attachments otherwise.
func (q Query) NeedsAttachments() bool {
	for _, c := range q.clauses {
		if c.kind == clauseAttachment || c.kind == clauseType {
			return true
		}
	}
	return false
}

// Match evaluates every clause against the message. atts may be nil when
// NeedsAttachments reports false.
func (q Query) Match(m *domain.Message, atts []domain.Attachment) bool {
	for _, c := range q.clauses {
		if !c.match(m, atts) {
			return false
		}
	}
	return true
}

func (c clause) match(m *domain.Message, atts []domain.Attachment) bool {
	switch c.kind {
	case clauseFree:
		return contains(m.From, c.text) || contains(m.Subject, c.text) || contains(m.Preview, c.text)
	case clauseFrom:
		return contains(m.From, c.text)
	case clauseTo:
		return contains(m.To, c.text) || contains(m.CC, c.text)
	case clauseSubject:
		return contains(m.Subject, c.text)
	case clauseDate:
		y, mo, d := m.Date.UTC().Date()
		cy, cmo, cd := c.day.Date()
		return y == cy && mo == cmo && d == cd
	case clauseSince:
		return !m.Date.Before(c.day)
	case clauseBefore:
		return m.Date.Before(c.day)
	case clauseAttachment:
		for _, a := range atts {
			if contains(a.Filename, c.text) {
				return true
			}
		}
		return false
	case clauseType:
		for _, a := range atts {
			if contains(a.MIME, c.text) {
				return true
			}
			// a bare subtype like "pdf" also matches by file extension
			if !strings.Contains(c.text, "/") && strings.HasSuffix(strings.ToLower(a.Filename), "."+c.text) {
				return true
			}
		}
		return false
	}
	return false
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}
