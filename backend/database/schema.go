package database

const postgresSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    full_name TEXT,
    phone TEXT,
    credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
    free_window_start TIMESTAMPTZ,
    free_expires_at TIMESTAMPTZ,
    free_used INTEGER NOT NULL DEFAULT 0 CHECK (free_used >= 0),
    stripe_customer_id TEXT,
    stripe_payment_method_id TEXT,
    auto_recharge BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payment_events (
    event_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES profiles(user_id),
    credits INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    result TEXT,
    archive_key TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_plans_user_created ON plans (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS plan_current (
    user_id TEXT PRIMARY KEY,
    plan_id TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SQLite keeps the same columns. Time columns are declared TIMESTAMP so the
// driver hands them back as time.Time.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS profiles (
    user_id TEXT PRIMARY KEY,
    full_name TEXT,
    phone TEXT,
    credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
    free_window_start TIMESTAMP,
    free_expires_at TIMESTAMP,
    free_used INTEGER NOT NULL DEFAULT 0 CHECK (free_used >= 0),
    stripe_customer_id TEXT,
    stripe_payment_method_id TEXT,
    auto_recharge INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_events (
    event_id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    user_id TEXT NOT NULL REFERENCES profiles(user_id),
    credits INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plans (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    result TEXT,
    archive_key TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plans_user_created ON plans (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS plan_current (
    user_id TEXT PRIMARY KEY,
    plan_id TEXT,
    updated_at TIMESTAMP NOT NULL
);
`
