package stage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/ulikunitz/xz"
)

var archiveMagic = map[resolve.ArchiveKind][][]byte{
	resolve.ArchiveZip:     {[]byte("PK\x03\x04"), []byte("PK\x05\x06")},
	resolve.ArchiveTarGzip: {{0x1f, 0x8b}},
	resolve.ArchiveTarXz:   {{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	resolve.ArchiveTarZstd: {{0x28, 0xb5, 0x2f, 0xfd}},
}

// checkFormat compares the leading bytes of the file at path with the
// signature of kind.
func checkFormat(path string, kind resolve.ArchiveKind) error {
	signatures, ok := archiveMagic[kind]
	if !ok {
		return fmt.Errorf("unsupported archive kind %q", kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, 8)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(head[:n], sig) {
			return nil
		}
	}
	return fmt.Errorf("downloaded file is not a %s archive", kind)
}

type archiveEntry struct {
	path string
	mode fs.FileMode
	link string
}

// visitFunc receives every entry of an archive. body is only readable for
// regular files and only until visitFunc returns.
type visitFunc func(entry archiveEntry, body io.Reader) error

func walkArchive(path string, kind resolve.ArchiveKind, visit visitFunc) error {
	if kind == resolve.ArchiveZip {
		return walkZip(path, visit)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	reader, closer, err := openArchiveReader(f, kind)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	return walkTar(reader, visit)
}

func walkZip(path string, visit visitFunc) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, file := range zr.File {
		if err := visitZipFile(file, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitZipFile(file *zip.File, visit visitFunc) error {
	entryPath, err := normalizeArchiveEntryName(file.Name)
	if err != nil {
		return err
	}
	mode := file.Mode()
	if mode.IsDir() {
		return visit(archiveEntry{path: entryPath, mode: mode}, nil)
	}
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if mode&fs.ModeSymlink != 0 {
		target, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		return visit(archiveEntry{path: entryPath, mode: mode, link: string(target)}, nil)
	}
	return visit(archiveEntry{path: entryPath, mode: mode}, rc)
}

func walkTar(r io.Reader, visit visitFunc) error {
	tarReader := tar.NewReader(r)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeReg, tar.TypeDir, tar.TypeSymlink:
		default:
			continue
		}
		entryPath, err := normalizeArchiveEntryName(header.Name)
		if err != nil {
			return err
		}
		entry := archiveEntry{path: entryPath, mode: header.FileInfo().Mode()}
		if header.Typeflag == tar.TypeSymlink {
			entry.link = header.Linkname
		}
		if err := visit(entry, tarReader); err != nil {
			return err
		}
	}
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

func openArchiveReader(r io.Reader, kind resolve.ArchiveKind) (io.Reader, io.Closer, error) {
	switch kind {
	case resolve.ArchiveTarGzip:
		gzipReader, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gzipReader, gzipReader, nil
	case resolve.ArchiveTarXz:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return xzReader, nil, nil
	case resolve.ArchiveTarZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return decoder, closerFunc(decoder.Close), nil
	default:
		return nil, nil, fmt.Errorf("unsupported archive encoding %q", kind)
	}
}

func normalizeArchiveEntryName(value string) (string, error) {
	cleaned := filepath.ToSlash(filepath.Clean(value))
	cleaned = strings.TrimPrefix(cleaned, "./")
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("invalid archive entry path %q", value)
	}
	if strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("archive entry path escapes root: %q", value)
	}
	return cleaned, nil
}

func resolveArchiveTargetPath(root, rel string) (string, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !withinRoot(root, target) {
		return "", fmt.Errorf("archive entry path escapes target root: %q", rel)
	}
	return target, nil
}

func withinRoot(root, target string) bool {
	cleanRoot := filepath.Clean(root)
	cleanTarget := filepath.Clean(target)
	return cleanTarget == cleanRoot || strings.HasPrefix(cleanTarget, cleanRoot+string(filepath.Separator))
}

// checkParents refuses to write below a symlink created by an earlier
// archive entry.
func checkParents(root, target string) error {
	rel, err := filepath.Rel(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("archive entry %q is written through symlink %q", target, current)
		}
	}
	return nil
}

// writeEntry materializes entry below root. Symlinks must stay inside
// root and are never followed while writing.
func writeEntry(root, rel string, entry archiveEntry, body io.Reader) error {
	target, err := resolveArchiveTargetPath(root, rel)
	if err != nil {
		return err
	}
	if err := checkParents(root, target); err != nil {
		return err
	}
	switch {
	case entry.mode.IsDir():
		if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("archive directory %q replaces a symlink", rel)
		}
		return os.MkdirAll(target, 0o755)
	case entry.link != "":
		link := filepath.FromSlash(entry.link)
		if filepath.IsAbs(link) || strings.HasPrefix(entry.link, "/") {
			return fmt.Errorf("archive symlink %q has absolute target %q", rel, entry.link)
		}
		if !withinRoot(root, filepath.Join(filepath.Dir(target), link)) {
			return fmt.Errorf("archive symlink %q points outside the target root: %q", rel, entry.link)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := removeExisting(target); err != nil {
			return err
		}
		return os.Symlink(link, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := removeExisting(target); err != nil {
		return err
	}
	perm := entry.mode.Perm()
	if perm == 0 {
		perm = 0o644
	}
	// O_EXCL fails on anything created at target since the removal,
	// including a symlink.
	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func removeExisting(target string) error {
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
