package stage

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pirakansa/rdpatch/internal/cli/shared"
)

// DefaultCacheDir returns the per-user download cache location.
func DefaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "rdpatch"), nil
}

// cacheEntry returns the content-addressed cache directory for checksum.
// Artifacts without a checksum are never cached.
func (s *Stager) cacheEntry(checksum shared.Checksum) string {
	if s.CacheDir == "" || checksum.IsZero() {
		return ""
	}
	return filepath.Join(s.CacheDir, checksum.Algorithm+"-"+checksum.Digest)
}

// validCacheFile re-verifies a cached archive. A file that no longer
// matches is removed so it is downloaded again.
func (s *Stager) validCacheFile(path string, checksum shared.Checksum) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	hasher, err := shared.NewHasher(checksum.Algorithm)
	if err != nil {
		f.Close()
		return false
	}
	_, err = io.Copy(hasher, f)
	f.Close()
	if err == nil && hex.EncodeToString(hasher.Sum(nil)) == checksum.Digest {
		return true
	}
	s.logger().Warn("cached artifact did not match its checksum, downloading again", "path", path)
	_ = os.Remove(path)
	return false
}
