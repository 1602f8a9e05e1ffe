// Package backup captures point-in-time snapshots of the target store before
// risky changes and restores them on demand.
//
// A backup flows through a fixed pipeline: the Snapshotter captures state as
// an opaque artifact, the artifact is compressed and optionally encrypted,
// a StorageProvider persists it (local disk, S3, Azure Blob Storage, or GCS),
// and a Record describing it is appended to the catalog. The record's
// checksum covers the stored bytes, so Restore can refuse a corrupted
// artifact before a single statement runs.
//
// Backups are retained independently of how the migration that triggered
// them turned out; only retention expiry removes them.
package backup
