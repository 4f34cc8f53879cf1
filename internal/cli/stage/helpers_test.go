package stage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

func sortedNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustBuildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zipWriter := zip.NewWriter(buf)
	for _, name := range sortedNames(files) {
		w, err := zipWriter.Create(name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("zipWriter.Close: %v", err)
	}
	return buf.Bytes()
}

func mustBuildTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	tarWriter := tar.NewWriter(buf)
	for _, name := range sortedNames(files) {
		content := files[name]
		header := &tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("WriteHeader(%s): %v", name, err)
		}
		if _, err := tarWriter.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("tarWriter.Close: %v", err)
	}
	return buf.Bytes()
}

func mustBuildTarGzip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	gzipWriter := gzip.NewWriter(buf)
	if _, err := gzipWriter.Write(mustBuildTar(t, files)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("gzipWriter.Close: %v", err)
	}
	return buf.Bytes()
}

func mustBuildTarXz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	xzWriter, err := xz.NewWriter(buf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := xzWriter.Write(mustBuildTar(t, files)); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xzWriter.Close(); err != nil {
		t.Fatalf("xzWriter.Close: %v", err)
	}
	return buf.Bytes()
}

func mustBuildTarZstd(t *testing.T, files map[string]string) []byte {
	t.Helper()
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(mustBuildTar(t, files), nil)
}

func mustBuildTarLzip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	lzWriter := lzip.NewWriter(buf)
	if _, err := lzWriter.Write(mustBuildTar(t, files)); err != nil {
		t.Fatalf("lzip write: %v", err)
	}
	if err := lzWriter.Close(); err != nil {
		t.Fatalf("lzWriter.Close: %v", err)
	}
	return buf.Bytes()
}

// servePayload serves payload and counts requests.
func servePayload(t *testing.T, payload []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write(payload)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk %s: %v", root, err)
	}
	return count
}

func mustReadFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

// archiveItem is one ordered archive entry; link makes it a symlink.
type archiveItem struct {
	name string
	body string
	link string
}

func mustBuildTarGzipItems(t *testing.T, items []archiveItem) []byte {
	t.Helper()
	tarBuf := &bytes.Buffer{}
	tarWriter := tar.NewWriter(tarBuf)
	for _, item := range items {
		header := &tar.Header{Name: item.name, Mode: 0o644, Size: int64(len(item.body)), Typeflag: tar.TypeReg}
		if item.link != "" {
			header = &tar.Header{Name: item.name, Mode: 0o777, Linkname: item.link, Typeflag: tar.TypeSymlink}
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatalf("WriteHeader(%s): %v", item.name, err)
		}
		if item.link == "" {
			if _, err := tarWriter.Write([]byte(item.body)); err != nil {
				t.Fatalf("Write(%s): %v", item.name, err)
			}
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatalf("tarWriter.Close: %v", err)
	}
	buf := &bytes.Buffer{}
	gzipWriter := gzip.NewWriter(buf)
	if _, err := gzipWriter.Write(tarBuf.Bytes()); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("gzipWriter.Close: %v", err)
	}
	return buf.Bytes()
}

func mustBuildZipItems(t *testing.T, items []archiveItem) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zipWriter := zip.NewWriter(buf)
	for _, item := range items {
		header := &zip.FileHeader{Name: item.name, Method: zip.Deflate}
		body := item.body
		if item.link != "" {
			header.SetMode(fs.ModeSymlink | 0o777)
			body = item.link
		} else {
			header.SetMode(0o644)
		}
		w, err := zipWriter.CreateHeader(header)
		if err != nil {
			t.Fatalf("CreateHeader(%s): %v", item.name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Write(%s): %v", item.name, err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		t.Fatalf("zipWriter.Close: %v", err)
	}
	return buf.Bytes()
}
