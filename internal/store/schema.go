package store

// Destination schema. The events table is range-partitioned by month on
// received_utc; partitions are created on demand by EnsurePartition.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS events (
    id              BIGINT GENERATED ALWAYS AS IDENTITY,
    received_utc    TIMESTAMPTZ NOT NULL,
    event_utc       TIMESTAMPTZ,
    source_host     TEXT,
    app_name        TEXT,
    facility        SMALLINT,
    severity        SMALLINT,
    message         TEXT,
    raw_message     TEXT,
    remote_endpoint TEXT,
    source          TEXT NOT NULL,
    PRIMARY KEY (received_utc, id)
) PARTITION BY RANGE (received_utc);

CREATE TABLE IF NOT EXISTS device_observations (
    id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
    occurred_utc TIMESTAMPTZ NOT NULL,
    mac_address  TEXT NOT NULL,
    event_type   TEXT,
    category     TEXT,
    source_host  TEXT,
    app_name     TEXT,
    rssi         INTEGER,
    ip_address   TEXT,
    message      TEXT,
    raw_message  TEXT
);

CREATE INDEX IF NOT EXISTS device_observations_mac_idx
    ON device_observations (mac_address, occurred_utc);

CREATE TABLE IF NOT EXISTS device_profiles (
    mac_address      TEXT PRIMARY KEY,
    first_seen       TIMESTAMPTZ NOT NULL,
    last_seen        TIMESTAMPTZ NOT NULL,
    last_event_type  TEXT,
    last_category    TEXT,
    last_source_host TEXT,
    last_app_name    TEXT,
    last_rssi        INTEGER,
    vendor_oui       TEXT,
    last_ip          TEXT,
    total_events     BIGINT NOT NULL DEFAULT 0
);
`
