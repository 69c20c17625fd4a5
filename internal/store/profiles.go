package store

// upsertProfileSQL merges one batch aggregate into a device profile.
// first_seen only moves backward, last_seen only forward, total_events
// accumulates, and nullable fields keep their old value when the batch has
// none (coalesce-on-write).
const upsertProfileSQL = `
INSERT INTO device_profiles (
    mac_address, first_seen, last_seen,
    last_event_type, last_category, last_source_host, last_app_name,
    last_rssi, vendor_oui, last_ip, total_events
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (mac_address) DO UPDATE SET
    first_seen       = LEAST(device_profiles.first_seen, EXCLUDED.first_seen),
    last_seen        = GREATEST(device_profiles.last_seen, EXCLUDED.last_seen),
    last_event_type  = COALESCE(EXCLUDED.last_event_type, device_profiles.last_event_type),
    last_category    = COALESCE(EXCLUDED.last_category, device_profiles.last_category),
    last_source_host = COALESCE(EXCLUDED.last_source_host, device_profiles.last_source_host),
    last_app_name    = COALESCE(EXCLUDED.last_app_name, device_profiles.last_app_name),
    last_rssi        = COALESCE(EXCLUDED.last_rssi, device_profiles.last_rssi),
    vendor_oui       = COALESCE(EXCLUDED.vendor_oui, device_profiles.vendor_oui),
    last_ip          = COALESCE(EXCLUDED.last_ip, device_profiles.last_ip),
    total_events     = device_profiles.total_events + EXCLUDED.total_events
`
