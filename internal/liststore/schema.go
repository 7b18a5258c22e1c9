package liststore

// Schema definitions for the embedded list store.
// Compatible with both SQLite and PostgreSQL.

const schemaListItems = `
CREATE TABLE IF NOT EXISTS list_items (
    site TEXT NOT NULL,
    list TEXT NOT NULL,
    id INTEGER NOT NULL,
    fields TEXT NOT NULL,
    author_id INTEGER NOT NULL DEFAULT 0,
    editor_id INTEGER NOT NULL DEFAULT 0,
    created TEXT NOT NULL,
    modified TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (site, list, id)
);
`

const schemaListItemVersions = `
CREATE TABLE IF NOT EXISTS list_item_versions (
    site TEXT NOT NULL,
    list TEXT NOT NULL,
    id INTEGER NOT NULL,
    version INTEGER NOT NULL,
    fields TEXT NOT NULL,
    editor_id INTEGER NOT NULL DEFAULT 0,
    modified TEXT NOT NULL,
    PRIMARY KEY (site, list, id, version)
);
`

const schemaListSequences = `
CREATE TABLE IF NOT EXISTS list_sequences (
    site TEXT NOT NULL,
    list TEXT NOT NULL,
    last_id INTEGER NOT NULL,
    PRIMARY KEY (site, list)
);
`

const schemaSiteUsers = `
CREATE TABLE IF NOT EXISTS site_users (
    site TEXT NOT NULL,
    id INTEGER NOT NULL,
    email TEXT NOT NULL,
    title TEXT NOT NULL,
    PRIMARY KEY (site, id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_site_users_email ON site_users(site, email);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaListItems,
		schemaListItemVersions,
		schemaListSequences,
		schemaSiteUsers,
	}
}
