package sqlite

// schemaSQL bootstraps tables of the Store, if they don't exist.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	tablet_id BLOB    NOT NULL,
	id        BLOB    NOT NULL,
	ts        INTEGER NOT NULL,
	deleted   INTEGER NOT NULL,
	codec     INTEGER NOT NULL,
	value     BLOB,
	prev_ts   INTEGER,
	PRIMARY KEY (ts, tablet_id, id)
);
-- Version chains of each document.
CREATE UNIQUE INDEX IF NOT EXISTS documents_by_id ON documents (tablet_id, id, ts);

CREATE TABLE IF NOT EXISTS indexes (
	index_id    BLOB    NOT NULL,
	key_prefix  BLOB    NOT NULL,
	key_suffix  BLOB    NOT NULL, -- Empty if the key fits within key_prefix.
	key_sha256  BLOB    NOT NULL,
	ts          INTEGER NOT NULL,
	deleted     INTEGER NOT NULL,
	tablet_id   BLOB,
	document_id BLOB,
	PRIMARY KEY (index_id, key_prefix, key_suffix, key_sha256, ts)
);

CREATE TABLE IF NOT EXISTS persistence_globals (
	key        TEXT PRIMARY KEY NOT NULL,
	json_value BLOB NOT NULL
);
`
