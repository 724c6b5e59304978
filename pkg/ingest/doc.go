// Package ingest derives per-request metrics from persisted request
// logs.
//
// Ingestion is decoupled from serving: the proxy only appends raw
// results to the request log, and a background processor later claims
// unprocessed rows in bounded batches, extracts token usage, and
// upserts one metrics row per request id. Claiming marks rows with a
// worker token instead of locking them, so concurrent workers skip
// each other's rows rather than blocking, and a crashed worker's
// claims expire and get picked up again.
//
// The same processor drives the one-time backfill over historical
// rows, throttled so it does not starve live ingestion.
package ingest
