package filestore

import "time"

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	Bucket string

	// Key is the full object path within the bucket, e.g. "exports/widgets.csv".
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	ContentType  string
	ETag         string
	LastModified time.Time
}
