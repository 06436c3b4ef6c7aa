package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Location is either an s3://bucket/prefix URI or a local filesystem path.
// Local paths are held as absolute keys with an empty bucket, to be used with
// a LocalProvider rooted at "/".
type Location struct {
	S3     bool
	Bucket string
	Key    string
}

func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("empty location")
	}

	for _, scheme := range []string{"s3://", "s3a://"} {
		if rest, ok := strings.CutPrefix(raw, scheme); ok {
			bucket, key, _ := strings.Cut(rest, "/")
			if bucket == "" {
				return Location{}, fmt.Errorf("location %s has no bucket", raw)
			}
			return Location{S3: true, Bucket: bucket, Key: strings.TrimSuffix(key, "/")}, nil
		}
	}

	if strings.Contains(raw, "://") {
		return Location{}, fmt.Errorf("unsupported location scheme: %s", raw)
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return Location{}, fmt.Errorf("failed to get absolute path for %s: %w", raw, err)
	}
	return Location{Key: abs}, nil
}

// Join returns the location of elem under l.
func (l Location) Join(elem ...string) Location {
	if l.S3 {
		return Location{S3: true, Bucket: l.Bucket, Key: strings.TrimPrefix(path.Join(append([]string{l.Key}, elem...)...), "/")}
	}
	return Location{Key: filepath.Join(append([]string{l.Key}, elem...)...)}
}

func (l Location) String() string {
	if l.S3 {
		return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
	}
	return l.Key
}

// NewProviderFunc builds the S3 provider lazily, so that runs touching only
// local paths never need S3 credentials.
type NewProviderFunc func() (Provider, error)

// ProviderFor returns the provider serving loc.
func ProviderFor(loc Location, newS3 NewProviderFunc) (Provider, error) {
	if loc.S3 {
		if newS3 == nil {
			return nil, fmt.Errorf("no s3 provider configured for %s", loc)
		}
		return newS3()
	}
	return NewLocalProvider("/")
}
