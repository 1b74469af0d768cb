package resultstore

const schema = `
CREATE TABLE IF NOT EXISTS sweeps (
    id TEXT PRIMARY KEY,
    plan TEXT,
    workers INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    total INTEGER NOT NULL DEFAULT 0,
    ok INTEGER NOT NULL DEFAULT 0,
    undefined INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    cancelled BOOLEAN DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_sweeps_started_at ON sweeps(started_at);

CREATE TABLE IF NOT EXISTS results (
    sweep_id TEXT NOT NULL REFERENCES sweeps(id),
    case_index INTEGER NOT NULL,
    mechanism_id TEXT NOT NULL,
    composition TEXT NOT NULL,
    fractions TEXT NOT NULL,
    temperature REAL NOT NULL,
    pressure REAL NOT NULL,
    ignition_delay REAL,
    status TEXT NOT NULL,
    error TEXT,
    worker INTEGER,
    elapsed_ms INTEGER,
    PRIMARY KEY (sweep_id, case_index)
);

CREATE INDEX IF NOT EXISTS idx_results_mechanism ON results(mechanism_id);
CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
`
