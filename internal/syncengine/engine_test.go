package syncengine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ternmail/tern/internal/domain"
	"github.com/ternmail/tern/internal/provider"
	"github.com/ternmail/tern/internal/store"
	"github.com/ternmail/tern/internal/store/sqlite"
)

// fakeClient serves a synthetic folder whose uids run from windowLow to
// uidNext-1. Header fetches are recorded for range assertions.
type fakeClient struct {
	mu sync.Mutex

	uidValidity uint32
	uidNext     uint32
	windowLow   uint32 // lowest uid SearchSince reports
	selectErr   error
	failFetches int // fail this many header fetches before succeeding
	failFrom    int // 1-based fetch call at which failures begin; 0 means the first
	fetchDelay  time.Duration

	fetchCalls    int
	fetchedRanges [][2]uint32
	flagRanges    [][2]uint32
}

// date maps a uid to its message date, one hour apart per uid.
func (f *fakeClient) date(uid uint32) time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour)
}

func (f *fakeClient) SelectFolder(ctx context.Context, name string) (provider.FolderStatus, error) {
	if f.selectErr != nil {
		return provider.FolderStatus{}, f.selectErr
	}
	return provider.FolderStatus{UIDValidity: f.uidValidity, UIDNext: f.uidNext}, nil
}

func (f *fakeClient) ListFolders(ctx context.Context) ([]provider.FolderInfo, error) {
	return []provider.FolderInfo{{Name: "INBOX"}}, nil
}

func (f *fakeClient) FetchHeaders(ctx context.Context, lo, hi uint32) ([]provider.Header, error) {
	f.mu.Lock()
	f.fetchCalls++
	shouldFail := f.failFetches > 0 && f.fetchCalls >= f.failFrom
	if shouldFail {
		f.failFetches--
	} else {
		f.fetchedRanges = append(f.fetchedRanges, [2]uint32{lo, hi})
	}
	delay := f.fetchDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldFail {
		return nil, &provider.NetworkError{Op: "fetch", Err: errors.New("connection reset")}
	}

	var headers []provider.Header
	for uid := lo; uid <= hi && uid < f.uidNext; uid++ {
		headers = append(headers, provider.Header{
			UID:     uid,
			Date:    f.date(uid),
			From:    "sender@example.com",
			Subject: "message",
			Unread:  true,
		})
	}
	return headers, nil
}

func (f *fakeClient) FetchFlags(ctx context.Context, lo, hi uint32) ([]provider.FlagUpdate, error) {
	f.mu.Lock()
	f.flagRanges = append(f.flagRanges, [2]uint32{lo, hi})
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeClient) FetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	return []byte("raw"), nil
}

func (f *fakeClient) SearchSince(ctx context.Context, since time.Time) (uint32, bool, error) {
	if f.windowLow == 0 || f.windowLow >= f.uidNext {
		return 0, false, nil
	}
	return f.windowLow, true, nil
}

func (f *fakeClient) SearchBefore(ctx context.Context, since, before time.Time) ([]uint32, error) {
	var uids []uint32
	for uid := uint32(1); uid < f.uidNext; uid++ {
		if d := f.date(uid); !d.Before(since) && d.Before(before) {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) ranges() [][2]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]uint32, len(f.fetchedRanges))
	copy(out, f.fetchedRanges)
	return out
}

func (f *fakeClient) flagFetches() [][2]uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][2]uint32, len(f.flagRanges))
	copy(out, f.flagRanges)
	return out
}

func newEngineFixture(t *testing.T, client *fakeClient, cfg Config) (*Engine, *sqlite.DB, *domain.Folder) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	acct := &domain.Account{Name: "test", Address: "t@example.com"}
	if err := db.UpsertAccount(ctx, acct); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	folder := &domain.Folder{AccountID: acct.ID, Name: "INBOX"}
	if _, err := db.UpsertFolder(ctx, folder); err != nil {
		t.Fatalf("UpsertFolder: %v", err)
	}
	cfg.RetryBaseDelay = time.Millisecond
	return New(db, client, acct.ID, cfg), db, folder
}

func runPass(t *testing.T, e *Engine, folder *domain.Folder) error {
	t.Helper()
	pass, err := e.SyncFolder(context.Background(), folder)
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}
	<-pass.Done()
	return pass.Err()
}

func TestSync_InitialPassChunksWholeWindow(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 1}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("pass failed: %v", err)
	}

	got := client.ranges()
	want := [][2]uint32{{1, 10}, {11, 20}, {21, 30}, {31, 40}, {41, 49}}
	if len(got) != len(want) {
		t.Fatalf("fetched %d chunks %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %v, want %v", i, got[i], want[i])
		}
	}

	st, err := db.GetFolderSyncState(context.Background(), folder.ID)
	if err != nil || st == nil {
		t.Fatalf("GetFolderSyncState: %v %v", st, err)
	}
	if st.UIDValidity != 1001 || st.UIDNext != 50 || st.LastSeenUID != 49 {
		t.Errorf("final state %+v, want (1001, 50, 49)", st)
	}
	if st.LastSeenUID >= st.UIDNext {
		t.Errorf("cursor invariant violated: last_seen %d >= uidnext %d", st.LastSeenUID, st.UIDNext)
	}

	msgs, _ := db.ListMessages(context.Background(), store.ListMessageOptions{FolderID: folder.ID})
	if len(msgs) != 49 {
		t.Errorf("stored %d messages, want 49", len(msgs))
	}
}

func TestSync_DeltaFetchesOnlyNewUIDs(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 1}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	client.mu.Lock()
	client.uidNext = 55
	client.fetchedRanges = nil
	client.mu.Unlock()

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("delta pass: %v", err)
	}

	got := client.ranges()
	if len(got) != 1 || got[0] != [2]uint32{50, 54} {
		t.Errorf("delta fetched %v, want [[50 54]]", got)
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st.LastSeenUID != 54 || st.UIDNext != 55 {
		t.Errorf("state after delta: %+v", st)
	}
}

func TestSync_EmptyDeltaTouchesNothing(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 1}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	client.mu.Lock()
	client.fetchedRanges = nil
	client.mu.Unlock()

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if got := client.ranges(); len(got) != 0 {
		t.Errorf("empty delta still fetched %v", got)
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st.LastSeenUID != 49 {
		t.Errorf("cursor moved to %d on empty delta", st.LastSeenUID)
	}
}

func TestSync_UIDValidityChangeTriggersFullResync(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 1}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	client.mu.Lock()
	client.uidValidity = 1002
	client.uidNext = 10
	client.windowLow = 1
	client.fetchedRanges = nil
	client.mu.Unlock()

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("resync pass: %v", err)
	}

	// the old last_seen_uid of 49 must not leak into range computation
	got := client.ranges()
	if len(got) != 1 || got[0] != [2]uint32{1, 9} {
		t.Errorf("resync fetched %v, want [[1 9]]", got)
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st.UIDValidity != 1002 || st.UIDNext != 10 || st.LastSeenUID != 9 {
		t.Errorf("cursor not replaced for new epoch: %+v", st)
	}
}

func TestSync_RetryRecoversTransientFailure(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 21, windowLow: 1, failFetches: 2}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10, MaxRetries: 3})

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("pass failed despite retries: %v", err)
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st.LastSeenUID != 20 {
		t.Errorf("last_seen = %d, want 20", st.LastSeenUID)
	}
}

func TestSync_ExhaustedRetriesKeepCommittedChunks(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 30, windowLow: 1}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10, MaxRetries: 2})

	// first chunk succeeds, every later fetch fails
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("warmup pass: %v", err)
	}
	client.mu.Lock()
	client.uidNext = 60
	client.failFetches = 100
	client.mu.Unlock()

	err := runPass(t, e, folder)
	if err == nil {
		t.Fatal("pass succeeded with permanently failing fetches")
	}
	if !provider.IsRetryable(err) {
		t.Errorf("abort error lost its network classification: %v", err)
	}

	// progress from the first pass survives
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st.LastSeenUID != 29 {
		t.Errorf("committed progress lost: last_seen = %d, want 29", st.LastSeenUID)
	}
	msgs, _ := db.ListMessages(context.Background(), store.ListMessageOptions{FolderID: folder.ID})
	if len(msgs) != 29 {
		t.Errorf("stored %d messages, want 29", len(msgs))
	}
}

func TestSync_AuthErrorNotRetried(t *testing.T) {
	client := &fakeClient{selectErr: provider.ErrAuth}
	e, _, folder := newEngineFixture(t, client, Config{})

	err := runPass(t, e, folder)
	if !errors.Is(err, provider.ErrAuth) {
		t.Errorf("got %v, want ErrAuth", err)
	}
}

func TestSync_ConcurrentCallersJoinOnePass(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 30, windowLow: 1, fetchDelay: 20 * time.Millisecond}
	e, _, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	ctx := context.Background()

	p1, err := e.SyncFolder(ctx, folder)
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}
	p2, err := e.SyncFolder(ctx, folder)
	if err != nil {
		t.Fatalf("SyncFolder join: %v", err)
	}
	if p1 != p2 {
		t.Error("second caller started a duplicate pass")
	}
	<-p1.Done()
	if p1.Err() != nil {
		t.Fatalf("pass: %v", p1.Err())
	}
	if got := client.ranges(); len(got) != 3 {
		t.Errorf("fetched %v, want exactly 3 chunks", got)
	}
}

func TestSync_BackfillRefusedWhileSyncing(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 30, windowLow: 1, fetchDelay: 50 * time.Millisecond}
	e, _, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	ctx := context.Background()

	p, err := e.SyncFolder(ctx, folder)
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}
	if _, err := e.Backfill(ctx, folder, 7); !errors.Is(err, ErrSyncInFlight) {
		t.Errorf("Backfill during sync: got %v, want ErrSyncInFlight", err)
	}
	<-p.Done()
}

func TestPass_WaitTimeoutLeavesPassRunning(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 30, windowLow: 1, fetchDelay: 60 * time.Millisecond}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})

	pass, err := e.SyncFolder(context.Background(), folder)
	if err != nil {
		t.Fatalf("SyncFolder: %v", err)
	}
	if err := pass.Wait(10 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Wait: got %v, want ErrWaitTimeout", err)
	}

	// the pass completes on its own after the wait gave up
	<-pass.Done()
	if pass.Err() != nil {
		t.Fatalf("pass: %v", pass.Err())
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	if st == nil || st.LastSeenUID != 29 {
		t.Errorf("pass did not run to completion: %+v", st)
	}
}

func TestBackfill_ExtendsOldestBoundary(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 20}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	st, _ := db.GetFolderSyncState(context.Background(), folder.ID)
	before := st.OldestTS
	lastSeen := st.LastSeenUID

	pass, err := e.Backfill(context.Background(), folder, 7)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	<-pass.Done()
	if pass.Err() != nil {
		t.Fatalf("backfill pass: %v", pass.Err())
	}

	st, _ = db.GetFolderSyncState(context.Background(), folder.ID)
	if st.OldestTS >= before {
		t.Errorf("oldest_ts not extended: %d -> %d", before, st.OldestTS)
	}
	if st.LastSeenUID != lastSeen {
		t.Errorf("backfill moved forward cursor: %d -> %d", lastSeen, st.LastSeenUID)
	}
}

func TestBackfill_FailedChunkResumesWithoutLosingMessages(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{uidValidity: 1001, uidNext: 21, windowLow: 15}
	e, db, folder := newEngineFixture(t, client, Config{FetchChunkSize: 3})
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	// the forward pass took two header fetches; let the first backfill chunk
	// land and every attempt on the second chunk fail
	client.failFrom = 4
	client.failFetches = 3

	pass, err := e.Backfill(ctx, folder, 30)
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	<-pass.Done()
	if pass.Err() == nil {
		t.Fatal("backfill succeeded despite exhausted retries")
	}

	// the boundary must cover only the committed newest chunk (uids 12-14),
	// never the whole window, so the unfetched uids stay below it
	st, err := db.GetFolderSyncState(ctx, folder.ID)
	if err != nil {
		t.Fatalf("GetFolderSyncState: %v", err)
	}
	if want := client.date(12).Unix(); st.OldestTS != want {
		t.Fatalf("oldest_ts after failed backfill: got %d, want %d (oldest committed date)", st.OldestTS, want)
	}

	// a healed backfill picks up below the boundary and recovers everything
	pass, err = e.Backfill(ctx, folder, 30)
	if err != nil {
		t.Fatalf("Backfill retry: %v", err)
	}
	<-pass.Done()
	if pass.Err() != nil {
		t.Fatalf("backfill retry: %v", pass.Err())
	}

	msgs, err := db.ListMessages(ctx, store.ListMessageOptions{FolderID: folder.ID})
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	got := make(map[uint32]bool, len(msgs))
	for _, m := range msgs {
		got[m.UID] = true
	}
	for uid := uint32(1); uid <= 20; uid++ {
		if !got[uid] {
			t.Errorf("uid %d missing after healed backfill", uid)
		}
	}
}

func TestSync_FlagRefreshIsChunked(t *testing.T) {
	client := &fakeClient{uidValidity: 1001, uidNext: 50, windowLow: 1}
	e, _, folder := newEngineFixture(t, client, Config{FetchChunkSize: 10})

	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	if err := runPass(t, e, folder); err != nil {
		t.Fatalf("delta pass: %v", err)
	}

	want := [][2]uint32{{1, 10}, {11, 20}, {21, 30}, {31, 40}, {41, 49}}
	got := client.flagFetches()
	if len(got) != len(want) {
		t.Fatalf("flag fetch ranges: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("flag fetch %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
