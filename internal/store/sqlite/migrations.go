package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    address     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS folders (
    id          INTEGER PRIMARY KEY,
    account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    unread      INTEGER NOT NULL DEFAULT 0,
    UNIQUE (account_id, name)
);

CREATE TABLE IF NOT EXISTS messages (
    id          INTEGER PRIMARY KEY,
    account_id  INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    folder_id   INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
    imap_uid    INTEGER NOT NULL,
    date_ts     INTEGER NOT NULL,
    from_addr   TEXT NOT NULL DEFAULT '',
    to_addr     TEXT NOT NULL DEFAULT '',
    cc_addr     TEXT NOT NULL DEFAULT '',
    subject     TEXT NOT NULL DEFAULT '',
    unread      INTEGER NOT NULL DEFAULT 0,
    preview     TEXT NOT NULL DEFAULT '',
    UNIQUE (folder_id, imap_uid)
);

CREATE INDEX IF NOT EXISTS idx_messages_folder_date ON messages(folder_id, date_ts DESC);

CREATE TABLE IF NOT EXISTS bodies (
    message_id  INTEGER PRIMARY KEY REFERENCES messages(id) ON DELETE CASCADE,
    raw         BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS attachments (
    message_id  INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    idx         INTEGER NOT NULL,
    filename    TEXT NOT NULL DEFAULT '',
    mime_type   TEXT NOT NULL DEFAULT '',
    size        INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (message_id, idx)
);

CREATE TABLE IF NOT EXISTS folder_sync_state (
    folder_id     INTEGER PRIMARY KEY REFERENCES folders(id) ON DELETE CASCADE,
    uidvalidity   INTEGER NOT NULL,
    uidnext       INTEGER NOT NULL DEFAULT 0,
    last_seen_uid INTEGER NOT NULL DEFAULT 0,
    last_sync_ts  INTEGER NOT NULL DEFAULT 0,
    oldest_ts     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS cache_text (
    message_id  INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    width_cols  INTEGER NOT NULL,
    body        TEXT NOT NULL,
    updated_at  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (message_id, width_cols)
);

CREATE TABLE IF NOT EXISTS cache_html (
    message_id    INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    remote_policy TEXT NOT NULL,
    body          TEXT NOT NULL,
    updated_at    INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (message_id, remote_policy)
);

CREATE TABLE IF NOT EXISTS cache_tiles (
    message_id     INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
    width_px       INTEGER NOT NULL,
    tile_height_px INTEGER NOT NULL,
    theme          TEXT NOT NULL,
    remote_policy  TEXT NOT NULL,
    tile_index     INTEGER NOT NULL,
    png            BLOB NOT NULL,
    updated_at     INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (message_id, width_px, tile_height_px, theme, remote_policy, tile_index)
);
`
