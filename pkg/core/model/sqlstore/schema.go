//
//  Copyright © Manetu Inc. All rights reserved.
//

package sqlstore

// Schema is the Postgres DDL of the tables the store reads. Group
// membership of users, packages and child groups shares the member table,
// discriminated by table_name; a child group row carries capacity 'parent'.
const Schema = `
CREATE TABLE IF NOT EXISTS "user" (
	id        TEXT PRIMARY KEY,
	name      TEXT UNIQUE NOT NULL,
	state     TEXT NOT NULL DEFAULT 'active',
	reset_key TEXT
);

CREATE TABLE IF NOT EXISTS "group" (
	id              TEXT PRIMARY KEY,
	name            TEXT UNIQUE NOT NULL,
	type            TEXT NOT NULL DEFAULT 'group',
	is_organization BOOLEAN NOT NULL DEFAULT FALSE,
	state           TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS package (
	id        TEXT PRIMARY KEY,
	name      TEXT UNIQUE NOT NULL,
	owner_org TEXT REFERENCES "group"(id),
	private   BOOLEAN NOT NULL DEFAULT FALSE,
	state     TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS resource (
	id         TEXT PRIMARY KEY,
	package_id TEXT NOT NULL REFERENCES package(id),
	state      TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS related (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	dataset_id TEXT
);

CREATE TABLE IF NOT EXISTS revision (
	id    TEXT PRIMARY KEY,
	state TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS member (
	group_id   TEXT NOT NULL REFERENCES "group"(id),
	table_id   TEXT NOT NULL,
	table_name TEXT NOT NULL,
	capacity   TEXT NOT NULL,
	state      TEXT NOT NULL DEFAULT 'active'
);

CREATE TABLE IF NOT EXISTS package_member (
	package_id TEXT NOT NULL REFERENCES package(id),
	user_id    TEXT NOT NULL REFERENCES "user"(id),
	capacity   TEXT NOT NULL,
	PRIMARY KEY (package_id, user_id)
);

CREATE TABLE IF NOT EXISTS user_object_role (
	subject_id  TEXT NOT NULL,
	object_kind TEXT NOT NULL,
	object_id   TEXT NOT NULL,
	role        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS role_action (
	role   TEXT NOT NULL,
	action TEXT NOT NULL,
	PRIMARY KEY (role, action)
);

CREATE TABLE IF NOT EXISTS authorization_group_user (
	authorization_group_id TEXT NOT NULL,
	user_id                TEXT NOT NULL
);
`
