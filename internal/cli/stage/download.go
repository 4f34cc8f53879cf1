package stage

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/schollz/progressbar/v3"
)

// DownloadDir holds in-flight downloads inside the build context.
const DownloadDir = ".downloads"

// fetch makes the archive for desc available locally. The returned release
// func removes it again unless it lives in the download cache.
func (s *Stager) fetch(ctx context.Context, desc *resolve.Descriptor, checksum shared.Checksum, workDir string) (string, func(), error) {
	fileName := archiveFileName(desc)
	if entry := s.cacheEntry(checksum); entry != "" {
		cached := filepath.Join(entry, fileName)
		if s.validCacheFile(cached, checksum) {
			s.logger().Debug("using cached artifact", "module", desc.Name(), "path", cached)
			return cached, func() {}, nil
		}
		err := os.MkdirAll(entry, 0o755)
		if err == nil {
			if err := s.download(ctx, desc, checksum, cached); err != nil {
				return "", nil, err
			}
			return cached, func() {}, nil
		}
		s.logger().Warn("download cache unavailable, downloading without cache", "error", err)
	}

	dir := filepath.Join(workDir, DownloadDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	target := filepath.Join(dir, fileName)
	// Removing dir only succeeds once it is empty, so concurrent
	// downloads into the same work dir are left alone.
	if err := s.download(ctx, desc, checksum, target); err != nil {
		_ = os.Remove(dir)
		return "", nil, err
	}
	return target, func() {
		_ = os.Remove(target)
		_ = os.Remove(dir)
	}, nil
}

// download streams desc.URL into target. Nothing is left at target or in
// its directory unless the whole body was received and verified.
func (s *Stager) download(ctx context.Context, desc *resolve.Descriptor, checksum shared.Checksum, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return fetchError(ReasonNetwork, desc.URL, err)
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return fetchError(ReasonNetwork, desc.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fetchError(ReasonNetwork, desc.URL, fmt.Errorf("download failed: status=%d", resp.StatusCode))
	}

	pending, err := renameio.TempFile(filepath.Dir(target), target)
	if err != nil {
		return err
	}
	defer pending.Cleanup()

	bar := s.progressBar(resp.ContentLength, "downloading "+desc.Name())
	writers := []io.Writer{pending, bar}
	var hasher hash.Hash
	if !checksum.IsZero() {
		hasher, err = shared.NewHasher(checksum.Algorithm)
		if err != nil {
			return fetchError(ReasonIntegrity, desc.URL, err)
		}
		writers = append(writers, hasher)
	}
	if _, err := io.Copy(io.MultiWriter(writers...), resp.Body); err != nil {
		return fetchError(ReasonNetwork, desc.URL, err)
	}
	_ = bar.Finish()

	if hasher != nil {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != checksum.Digest {
			return fetchError(ReasonIntegrity, desc.URL, fmt.Errorf("checksum mismatch: expected %s got %s:%s", checksum, checksum.Algorithm, got))
		}
	}
	return pending.CloseAtomicallyReplace()
}

func (s *Stager) progressBar(size int64, description string) *progressbar.ProgressBar {
	w := s.Progress
	if w == nil {
		w = io.Discard
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

func archiveFileName(desc *resolve.Descriptor) string {
	switch desc.Archive {
	case resolve.ArchiveTarGzip:
		return desc.Dest + ".tar.gz"
	case resolve.ArchiveTarXz:
		return desc.Dest + ".tar.xz"
	case resolve.ArchiveTarZstd:
		return desc.Dest + ".tar.zst"
	default:
		return desc.Dest + ".zip"
	}
}
