package sqlite

import (
	"context"
	"fmt"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/search"
	"github.com/ternmail/tern/internal/store"
)

// SearchMessages evaluates a parsed query against the local mirror. Candidate
// rows come ordered from SQL; predicate evaluation happens in Go so the
// grammar has one implementation. Attachment rows are loaded only when a
// clause needs them.
func (s *DB) SearchMessages(ctx context.Context, accountID, folderID int64, q search.Query, limit int) ([]domain.Message, error) {
	candidates, err := s.ListMessages(ctx, store.ListMessageOptions{
		AccountID: accountID,
		FolderID:  folderID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load search candidates: %w", err)
	}

	needAtts := q.NeedsAttachments()
	var out []domain.Message
	for i := range candidates {
		m := &candidates[i]
		var atts []domain.Attachment
		if needAtts {
			atts, err = s.AttachmentsFor(ctx, m.ID)
			if err != nil {
				return nil, err
			}
		}
		if q.Match(m, atts) {
			out = append(out, *m)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
