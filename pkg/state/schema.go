package state

const schema = `
CREATE TABLE IF NOT EXISTS states (
	id         TEXT PRIMARY KEY,
	parent_id  TEXT REFERENCES states(id),
	created_at INTEGER NOT NULL,
	label      TEXT NOT NULL,
	slot       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS packages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	state_id     TEXT NOT NULL REFERENCES states(id),
	name         TEXT NOT NULL,
	version      TEXT NOT NULL,
	hash         TEXT NOT NULL,
	size         INTEGER NOT NULL,
	installed_at INTEGER NOT NULL,
	venv_path    TEXT
);

CREATE INDEX IF NOT EXISTS idx_packages_state_id ON packages(state_id);
CREATE INDEX IF NOT EXISTS idx_packages_name ON packages(name);

CREATE TABLE IF NOT EXISTS package_file_entries (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	package_id    INTEGER NOT NULL REFERENCES packages(id),
	file_hash     TEXT NOT NULL REFERENCES file_objects(hash),
	relative_path TEXT NOT NULL,
	permissions   INTEGER NOT NULL,
	uid           INTEGER NOT NULL,
	gid           INTEGER NOT NULL,
	mtime         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pfe_package_id ON package_file_entries(package_id);
CREATE INDEX IF NOT EXISTS idx_pfe_file_hash ON package_file_entries(file_hash);

CREATE TABLE IF NOT EXISTS file_objects (
	hash            TEXT PRIMARY KEY,
	size            INTEGER NOT NULL,
	created_at      INTEGER NOT NULL,
	ref_count       INTEGER NOT NULL DEFAULT 0,
	is_executable   INTEGER NOT NULL DEFAULT 0,
	is_symlink      INTEGER NOT NULL DEFAULT 0,
	symlink_target  TEXT,
	last_verified   INTEGER,
	verify_attempts INTEGER NOT NULL DEFAULT 0,
	quarantined     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS store_refs (
	hash      TEXT PRIMARY KEY,
	size      INTEGER NOT NULL,
	ref_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS current (
	key      TEXT PRIMARY KEY,
	state_id TEXT NOT NULL REFERENCES states(id)
);

CREATE TABLE IF NOT EXISTS slots (
	slot     INTEGER PRIMARY KEY,
	state_id TEXT REFERENCES states(id)
);
`
