// Package syncengine reconciles remote folders into the local store. Each
// folder moves through a pass of select, cursor reconciliation, and chunked
// header fetches committed one transaction at a time.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/provider"
	"github.com/ternmail/tern/internal/store"
)

var (
	// ErrSyncInFlight is returned when a conflicting pass already runs on
	// the folder and the caller cannot join it.
	ErrSyncInFlight = errors.New("sync already in flight for folder")
	// ErrWaitTimeout is returned by Pass.Wait when the deadline elapses.
	// The underlying pass keeps running.
	ErrWaitTimeout = errors.New("timed out waiting for sync")
)

// Config tunes a sync engine. Zero values fall back to defaults.
type Config struct {
	InitialSyncDays int
	FetchChunkSize  int
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialSyncDays <= 0 {
		c.InitialSyncDays = 30
	}
	if c.FetchChunkSize <= 0 {
		c.FetchChunkSize = 50
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = time.Second
	}
	return c
}

type passKind int

const (
	kindSync passKind = iota
	kindBackfill
)

// Pass is one in-flight sync or backfill run. Multiple callers may hold the
// same Pass and wait on its completion.
type Pass struct {
	kind passKind
	done chan struct{}
	err  error
}

// Wait blocks until the pass finishes or the timeout elapses. A timeout
// cancels only the waiting; the pass itself runs to completion.
func (p *Pass) Wait(timeout time.Duration) error {
	select {
	case <-p.done:
		return p.err
	case <-time.After(timeout):
		return ErrWaitTimeout
	}
}

// Done returns a channel closed when the pass completes.
func (p *Pass) Done() <-chan struct{} { return p.done }

// Err returns the pass outcome. Only valid after Done is closed.
func (p *Pass) Err() error { return p.err }

// Engine drives sync passes for one account. At most one pass runs per
// folder; duplicate requests join the running pass instead of racing the
// cursor.
type Engine struct {
	store     store.Store
	client    provider.Client
	accountID int64
	cfg       Config

	mu       sync.Mutex // guards inflight
	inflight map[int64]*Pass
}

func New(st store.Store, client provider.Client, accountID int64, cfg Config) *Engine {
	return &Engine{
		store:     st,
		client:    client,
		accountID: accountID,
		cfg:       cfg.withDefaults(),
		inflight:  make(map[int64]*Pass),
	}
}

// SyncFolder starts a forward sync pass for the folder, or joins the one
// already running. A running backfill blocks the request instead.
func (e *Engine) SyncFolder(ctx context.Context, folder *domain.Folder) (*Pass, error) {
	return e.start(ctx, folder, kindSync, 0)
}

// Backfill fetches messages older than the current retention boundary,
// extending it by windowDays. It refuses to overlap any running pass.
func (e *Engine) Backfill(ctx context.Context, folder *domain.Folder, windowDays int) (*Pass, error) {
	if windowDays <= 0 {
		windowDays = e.cfg.InitialSyncDays
	}
	return e.start(ctx, folder, kindBackfill, windowDays)
}

func (e *Engine) start(ctx context.Context, folder *domain.Folder, kind passKind, windowDays int) (*Pass, error) {
	e.mu.Lock()
	if p, ok := e.inflight[folder.ID]; ok {
		e.mu.Unlock()
		if p.kind == kind {
			return p, nil
		}
		return nil, ErrSyncInFlight
	}
	p := &Pass{kind: kind, done: make(chan struct{})}
	e.inflight[folder.ID] = p
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.inflight, folder.ID)
			e.mu.Unlock()
			close(p.done)
		}()
		switch kind {
		case kindSync:
			p.err = e.runSync(ctx, folder)
		case kindBackfill:
			p.err = e.runBackfill(ctx, folder, windowDays)
		}
		if p.err != nil {
			log.Printf("[sync] folder %s: %v", folder.Name, p.err)
		}
	}()
	return p, nil
}

// SyncAccount refreshes the folder list from the remote and runs a forward
// sync pass over every folder, one at a time.
func (e *Engine) SyncAccount(ctx context.Context) error {
	infos, err := e.client.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	for _, info := range infos {
		folder := &domain.Folder{AccountID: e.accountID, Name: info.Name, Unread: info.Unread}
		if _, err := e.store.UpsertFolder(ctx, folder); err != nil {
			return err
		}
		pass, err := e.SyncFolder(ctx, folder)
		if err != nil {
			return err
		}
		<-pass.Done()
		if err := pass.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runSync(ctx context.Context, folder *domain.Folder) error {
	status, err := e.client.SelectFolder(ctx, folder.Name)
	if err != nil {
		return err
	}

	st, err := e.store.GetFolderSyncState(ctx, folder.ID)
	if err != nil {
		return err
	}

	var lo, hi uint32
	hi = statusUpperBound(status)
	fresh := st == nil || st.UIDValidity != status.UIDValidity

	if fresh {
		if st != nil {
			log.Printf("[sync] folder %s: uidvalidity changed %d -> %d, full resync",
				folder.Name, st.UIDValidity, status.UIDValidity)
		}
		since := time.Now().AddDate(0, 0, -e.cfg.InitialSyncDays)
		lowest, ok, err := e.client.SearchSince(ctx, since)
		if err != nil {
			return err
		}
		if !ok {
			// nothing within the window: cursor starts at the top
			lowest = status.UIDNext
		}
		lo = lowest
		// the replaced cursor is durable before any fetch, so a crash
		// mid-pass resumes inside the new epoch rather than the old one
		if err := e.store.ResetCursor(ctx, &store.FolderSyncState{
			FolderID:    folder.ID,
			UIDValidity: status.UIDValidity,
			LastSeenUID: lo - 1,
		}); err != nil {
			return err
		}
	} else {
		lo = st.LastSeenUID + 1
	}

	if lo <= hi {
		if err := e.fetchChunks(ctx, folder, lo, hi); err != nil {
			return err
		}
	}

	// reconcile read-state on messages fetched in earlier passes
	if !fresh && st.LastSeenUID > 0 {
		if err := e.refreshFlags(ctx, folder, st.LastSeenUID); err != nil {
			return err
		}
	}

	return e.store.FinalizeSync(ctx, folder.ID, status.UIDNext, time.Now().Unix())
}

func (e *Engine) runBackfill(ctx context.Context, folder *domain.Folder, windowDays int) error {
	if _, err := e.client.SelectFolder(ctx, folder.Name); err != nil {
		return err
	}
	st, err := e.store.GetFolderSyncState(ctx, folder.ID)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("folder %s has never been synced", folder.Name)
	}

	before := time.Unix(st.OldestTS, 0)
	if st.OldestTS == 0 {
		before = time.Now()
	}
	since := before.AddDate(0, 0, -windowDays)

	uids, err := e.client.SearchBefore(ctx, since, before)
	if err != nil {
		return err
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	// walk the window newest first, committing each chunk's boundary as the
	// oldest date it actually fetched. Every uid below the recorded boundary
	// is still unfetched, so a pass that dies mid-window resumes from the
	// boundary and re-covers the rest.
	for end := len(uids); end > 0; {
		start := end - e.cfg.FetchChunkSize
		if start < 0 {
			start = 0
		}
		chunk := uids[start:end]
		lo, hi := minMax(chunk)
		headers, err := e.fetchHeadersWithRetry(ctx, lo, hi)
		if err != nil {
			return err
		}
		if msgs := toMessages(headers); len(msgs) > 0 {
			if err := e.store.CommitBackfillChunk(ctx, e.accountID, folder.ID, msgs, oldestDate(msgs)); err != nil {
				return err
			}
		}
		end = start
	}

	// every chunk landed: record the full window even when its tail held
	// nothing, so a repeated backfill reaches further back instead of
	// rescanning
	return e.store.CommitBackfillChunk(ctx, e.accountID, folder.ID, nil, since.Unix())
}

func (e *Engine) fetchChunks(ctx context.Context, folder *domain.Folder, lo, hi uint32) error {
	chunk := uint32(e.cfg.FetchChunkSize)
	for cur := lo; cur <= hi; {
		chunkHi := cur + chunk - 1
		if chunkHi > hi || chunkHi < cur { // overflow guard
			chunkHi = hi
		}
		headers, err := e.fetchHeadersWithRetry(ctx, cur, chunkHi)
		if err != nil {
			return fmt.Errorf("chunk %d:%d: %w", cur, chunkHi, err)
		}
		msgs := toMessages(headers)
		if err := e.store.CommitHeaderChunk(ctx, e.accountID, folder.ID, msgs, chunkHi); err != nil {
			return err
		}
		cur = chunkHi + 1
	}
	return nil
}

func (e *Engine) fetchHeadersWithRetry(ctx context.Context, lo, hi uint32) ([]provider.Header, error) {
	var lastErr error
	delay := e.cfg.RetryBaseDelay
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[sync] retrying fetch %d:%d (attempt %d): %v", lo, hi, attempt+1, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		headers, err := e.client.FetchHeaders(ctx, lo, hi)
		if err == nil {
			return headers, nil
		}
		if !provider.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// refreshFlags walks the already-seen uid range in fetch-sized chunks and
// applies each chunk's flag changes as it lands. A fetch failure skips the
// rest of the refresh; committed messages keep their last known state.
func (e *Engine) refreshFlags(ctx context.Context, folder *domain.Folder, hi uint32) error {
	chunk := uint32(e.cfg.FetchChunkSize)
	for cur := uint32(1); cur <= hi; {
		chunkHi := cur + chunk - 1
		if chunkHi > hi || chunkHi < cur {
			chunkHi = hi
		}
		updates, err := e.fetchFlagsWithRetry(ctx, cur, chunkHi)
		if err != nil {
			log.Printf("[sync] folder %s: flag refresh skipped at %d:%d: %v", folder.Name, cur, chunkHi, err)
			return nil
		}
		if err := e.store.ApplyFlagUpdates(ctx, folder.ID, updates); err != nil {
			return err
		}
		cur = chunkHi + 1
	}
	return nil
}

func (e *Engine) fetchFlagsWithRetry(ctx context.Context, lo, hi uint32) ([]provider.FlagUpdate, error) {
	var lastErr error
	delay := e.cfg.RetryBaseDelay
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		updates, err := e.client.FetchFlags(ctx, lo, hi)
		if err == nil {
			return updates, nil
		}
		if !provider.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// statusUpperBound is the highest uid a fetch may cover: uidnext is the next
// uid the server will assign, so existing mail ends one below it.
func statusUpperBound(status provider.FolderStatus) uint32 {
	if status.UIDNext == 0 {
		return 0
	}
	return status.UIDNext - 1
}

func toMessages(headers []provider.Header) []domain.Message {
	msgs := make([]domain.Message, 0, len(headers))
	for _, h := range headers {
		msgs = append(msgs, domain.Message{
			UID:     h.UID,
			Date:    h.Date,
			From:    h.From,
			Subject: h.Subject,
			Unread:  h.Unread,
		})
	}
	return msgs
}

// oldestDate is the oldest timestamp in a non-empty chunk.
func oldestDate(msgs []domain.Message) int64 {
	oldest := msgs[0].Date.Unix()
	for _, m := range msgs[1:] {
		if ts := m.Date.Unix(); ts < oldest {
			oldest = ts
		}
	}
	return oldest
}

func minMax(uids []uint32) (uint32, uint32) {
	lo, hi := uids[0], uids[0]
	for _, uid := range uids[1:] {
		if uid < lo {
			lo = uid
		}
		if uid > hi {
			hi = uid
		}
	}
	return lo, hi
}
