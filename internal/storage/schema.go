// Package storage owns the sktm state database: the patch ledger
// schema, its versioned migrations, and the operations the CI driver
// performs against it.
package storage

// SchemaV1 is the original database layout. The pendingpatches table
// carries a generic job reference only; patch identity was tracked
// outside the ledger.
const SchemaV1 = `
CREATE TABLE baserepo(
	id INTEGER PRIMARY KEY,
	url TEXT UNIQUE
);

CREATE TABLE patchsource(
	id INTEGER PRIMARY KEY,
	baseurl TEXT,
	project_id INTEGER
);

CREATE TABLE patch(
	id INTEGER PRIMARY KEY,
	name TEXT,
	url TEXT,
	date TEXT,
	patchsource_id INTEGER,
	FOREIGN KEY(patchsource_id) REFERENCES patchsource(id)
);

CREATE TABLE pendingjobs(
	id INTEGER PRIMARY KEY,
	job_name TEXT,
	build_id INTEGER
);

CREATE TABLE pendingpatches(
	id INTEGER PRIMARY KEY,
	timestamp INTEGER,
	pendingjob_id INTEGER,
	FOREIGN KEY(pendingjob_id) REFERENCES pendingjobs(id)
);

CREATE TABLE testrun(
	id INTEGER PRIMARY KEY,
	result_id INTEGER,
	build_id INTEGER
);

CREATE TABLE baseline(
	id INTEGER PRIMARY KEY,
	baserepo_id INTEGER,
	commitid TEXT,
	commitdate INTEGER,
	testrun_id INTEGER,
	FOREIGN KEY(baserepo_id) REFERENCES baserepo(id),
	FOREIGN KEY(testrun_id) REFERENCES testrun(id)
);
`

// SchemaV2 rebuilds pendingpatches so each queued patch is identified
// by a unique patch_id. SQLite cannot add constraints in place, so the
// table is renamed aside, recreated, and the timestamps copied through.
// Old row ids are discarded; patch_id and pendingjob_id start NULL and
// are populated by the driver as series are re-queued.
const SchemaV2 = `
ALTER TABLE pendingpatches RENAME TO pendingpatches_tmp;

CREATE TABLE pendingpatches(
	id INTEGER PRIMARY KEY,
	patch_id INTEGER UNIQUE,
	timestamp INTEGER,
	pendingjob_id INTEGER,
	FOREIGN KEY(patch_id) REFERENCES patch(id),
	FOREIGN KEY(pendingjob_id) REFERENCES pendingjobs(id)
);

INSERT INTO pendingpatches(timestamp)
	SELECT timestamp FROM pendingpatches_tmp;

DROP TABLE pendingpatches_tmp;
`
