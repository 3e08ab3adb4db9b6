// Package cache defines the disk-backed bucket store behind the offline asset
// cache controller. Each bucket is a directory under StoragePath holding one
// body file and one JSON metadata sidecar per cached request, keyed by the
// SHA-256 of the absolute request URL. Writes go through temp file + rename,
// and the store can enumerate and drop whole buckets so that a new controller
// version can clean up the buckets of the previous one at activation time.
// Higher layers decide freshness (see TTLPolicy) and schedule detached writes
// (see Writer).
package cache
