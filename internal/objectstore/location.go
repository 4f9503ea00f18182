package objectstore

import (
	"fmt"
	"path"
	"strings"
)

// Location is a bucket and a key prefix. The prefix never has leading or
// trailing slashes.
type Location struct {
	Bucket string
	Prefix string
}

// NewLocation normalises prefix.
func NewLocation(bucket, prefix string) Location {
	return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}
}

// ParseURI parses gs://bucket[/prefix].
func ParseURI(uri string) (Location, error) {
	const scheme = "gs://"
	if !strings.HasPrefix(uri, scheme) {
		return Location{}, fmt.Errorf("parse object URI %q: scheme is not %q", uri, scheme)
	}
	rest := uri[len(scheme):]
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, fmt.Errorf("parse object URI %q: no bucket", uri)
	}
	return NewLocation(bucket, prefix), nil
}

// String renders the location as a gs:// URI.
func (l Location) String() string {
	if l.Prefix == "" {
		return "gs://" + l.Bucket
	}
	return "gs://" + l.Bucket + "/" + l.Prefix
}

// Key returns the object key for a slash-separated path relative to the
// prefix.
func (l Location) Key(rel string) string {
	if l.Prefix == "" {
		return rel
	}
	return path.Join(l.Prefix, rel)
}

// Join returns a location one or more segments below l.
func (l Location) Join(elem ...string) Location {
	parts := append([]string{l.Prefix}, elem...)
	return NewLocation(l.Bucket, path.Join(parts...))
}

// listPrefix is the prefix used to list objects strictly below l.
func (l Location) listPrefix() string {
	if l.Prefix == "" {
		return ""
	}
	return l.Prefix + "/"
}
