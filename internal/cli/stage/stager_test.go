package stage

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	"github.com/pirakansa/rdpatch/internal/cli/shared"
	"github.com/pirakansa/rdpatch/pkg/redroid"
)

func treeDescriptor(url string, payload []byte) *resolve.Descriptor {
	return &resolve.Descriptor{
		Module:   redroid.ModuleGMS,
		Provider: redroid.GMSMindTheGApps,
		URL:      url,
		Archive:  resolve.ArchiveZip,
		Layout:   resolve.LayoutTree,
		Dest:     "mindthegapps",
		Root:     "system",
		Into:     "system",
		Checksum: "md5:" + shared.MD5Hex(payload),
	}
}

func newTestStager() *Stager {
	return &Stager{Now: func() time.Time { return time.Unix(0, 0) }}
}

func assertFetchReason(t *testing.T, err error, want FetchReason) {
	t.Helper()
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Reason != want {
		t.Fatalf("expected reason %s got %s (%v)", want, fetchErr.Reason, err)
	}
}

func TestStageExtractsTreeLayout(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{
		"system/priv-app/Phonesky/Phonesky.apk": "apk",
		"system/etc/permissions/gms.xml":        "<permissions/>",
		"META-INF/com/google/android/updater":   "script",
	})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()

	artifact, err := newTestStager().Stage(context.Background(), treeDescriptor(server.URL, payload), workDir)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if artifact.Dir != filepath.Join(workDir, "mindthegapps") || artifact.Dest != "mindthegapps" {
		t.Fatalf("unexpected artifact: %+v", artifact)
	}
	if got := mustReadFile(t, filepath.Join(artifact.Dir, "system/priv-app/Phonesky/Phonesky.apk")); got != "apk" {
		t.Fatalf("unexpected apk content: %q", got)
	}
	if _, err := os.Stat(filepath.Join(artifact.Dir, "META-INF")); !os.IsNotExist(err) {
		t.Fatalf("expected files outside root to be skipped, err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, MetaDir, "mindthegapps.yaml")); err != nil {
		t.Fatalf("expected staging marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, DownloadDir)); !os.IsNotExist(err) {
		t.Fatalf("expected downloaded archive and its dir to be removed, err=%v", err)
	}

	if err := artifact.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if got := countFiles(t, workDir); got != 0 {
		t.Fatalf("expected empty work dir after Remove, found %d files", got)
	}
}

func TestStageReusesExistingExtraction(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"system/app/A/A.apk": "a"})
	server, hits := servePayload(t, payload)
	workDir := t.TempDir()
	stager := newTestStager()
	desc := treeDescriptor(server.URL, payload)

	if _, err := stager.Stage(context.Background(), desc, workDir); err != nil {
		t.Fatalf("first Stage failed: %v", err)
	}
	if _, err := stager.Stage(context.Background(), desc, workDir); err != nil {
		t.Fatalf("second Stage failed: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected one download, got %d", got)
	}

	changed := *desc
	changed.URL = server.URL + "/mirror"
	artifact, err := stager.Stage(context.Background(), &changed, workDir)
	if err != nil {
		t.Fatalf("restage failed: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected a new download for a different source, got %d", got)
	}
	if got := mustReadFile(t, filepath.Join(artifact.Dir, "system/app/A/A.apk")); got != "a" {
		t.Fatalf("unexpected content after restage: %q", got)
	}
}

func TestStageHTTPStatusFailureLeavesNoFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()
	workDir := t.TempDir()

	_, err := newTestStager().Stage(context.Background(), treeDescriptor(server.URL, nil), workDir)
	assertFetchReason(t, err, ReasonNetwork)
	if got := countFiles(t, workDir); got != 0 {
		t.Fatalf("expected no residual files, found %d", got)
	}
	if _, err := os.Stat(filepath.Join(workDir, DownloadDir)); !os.IsNotExist(err) {
		t.Fatalf("expected download dir to be removed after a failed download, err=%v", err)
	}
}

func TestStageInterruptedDownloadLeavesNoFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(bytes.Repeat([]byte("x"), 4096))
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("response writer does not support hijacking")
			return
		}
		conn, _, err := hijacker.Hijack()
		if err != nil {
			t.Errorf("Hijack failed: %v", err)
			return
		}
		_ = conn.Close()
	}))
	defer server.Close()
	workDir := t.TempDir()

	_, err := newTestStager().Stage(context.Background(), treeDescriptor(server.URL, nil), workDir)
	assertFetchReason(t, err, ReasonNetwork)
	if got := countFiles(t, workDir); got != 0 {
		t.Fatalf("expected no residual files after interrupted download, found %d", got)
	}
	if _, err := os.Stat(filepath.Join(workDir, "mindthegapps")); !os.IsNotExist(err) {
		t.Fatalf("expected no staging directory, err=%v", err)
	}
}

func TestStageCancelledContext(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"system/a": "a"})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestStager().Stage(ctx, treeDescriptor(server.URL, payload), workDir)
	assertFetchReason(t, err, ReasonNetwork)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if got := countFiles(t, workDir); got != 0 {
		t.Fatalf("expected no residual files, found %d", got)
	}
}

func TestStageChecksumMismatch(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"system/a": "a"})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()

	cases := []struct {
		name     string
		checksum string
	}{
		{name: "md5", checksum: "md5:" + shared.MD5Hex([]byte("other"))},
		{name: "sha256", checksum: "sha256:" + shared.SHA256Hex([]byte("other"))},
		{name: "blake3", checksum: "blake3:" + shared.BLAKE3Hex([]byte("other"))},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			desc := treeDescriptor(server.URL, payload)
			desc.Checksum = tc.checksum
			_, err := newTestStager().Stage(context.Background(), desc, workDir)
			assertFetchReason(t, err, ReasonIntegrity)
			if got := countFiles(t, workDir); got != 0 {
				t.Fatalf("expected no residual files, found %d", got)
			}
		})
	}
}

func TestStageAcceptsEveryChecksumAlgorithm(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"system/a": "a"})
	server, _ := servePayload(t, payload)
	for name, checksum := range map[string]string{
		"md5":    "md5:" + shared.MD5Hex(payload),
		"sha256": "sha256:" + shared.SHA256Hex(payload),
		"blake3": "blake3:" + shared.BLAKE3Hex(payload),
	} {
		desc := treeDescriptor(server.URL, payload)
		desc.Checksum = checksum
		if _, err := newTestStager().Stage(context.Background(), desc, t.TempDir()); err != nil {
			t.Fatalf("%s: Stage failed: %v", name, err)
		}
	}
}

func TestStageFormatMismatch(t *testing.T) {
	payload := mustBuildTarGzip(t, map[string]string{"system/a": "a"})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()

	_, err := newTestStager().Stage(context.Background(), treeDescriptor(server.URL, payload), workDir)
	assertFetchReason(t, err, ReasonFormat)
	if got := countFiles(t, workDir); got != 0 {
		t.Fatalf("expected no residual files, found %d", got)
	}
	if _, err := os.Stat(filepath.Join(workDir, DownloadDir)); !os.IsNotExist(err) {
		t.Fatalf("expected download dir to be removed, err=%v", err)
	}
}

func TestStageMissingRootIsFormatError(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"vendor/lib/a.so": "a"})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()

	_, err := newTestStager().Stage(context.Background(), treeDescriptor(server.URL, payload), workDir)
	assertFetchReason(t, err, ReasonFormat)
	if _, err := os.Stat(filepath.Join(workDir, "mindthegapps")); !os.IsNotExist(err) {
		t.Fatalf("expected no staging directory, err=%v", err)
	}
}

func TestStageRejectsEscapingEntries(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"../evil": "x"})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()
	desc := treeDescriptor(server.URL, payload)
	desc.Root = ""

	_, err := newTestStager().Stage(context.Background(), desc, workDir)
	assertFetchReason(t, err, ReasonFormat)
	if _, err := os.Stat(filepath.Join(filepath.Dir(workDir), "evil")); !os.IsNotExist(err) {
		t.Fatalf("entry escaped the work dir, err=%v", err)
	}
}

func TestStageRejectsWritesThroughArchiveSymlinks(t *testing.T) {
	outside := t.TempDir()
	cases := []struct {
		name    string
		archive resolve.ArchiveKind
		items   []archiveItem
	}{
		{name: "tar absolute link then file", archive: resolve.ArchiveTarGzip, items: []archiveItem{
			{name: "prebuilts/evil", link: outside},
			{name: "prebuilts/evil/pwned", body: "x"},
		}},
		{name: "zip absolute link then file", archive: resolve.ArchiveZip, items: []archiveItem{
			{name: "prebuilts/evil", link: outside},
			{name: "prebuilts/evil/pwned", body: "x"},
		}},
		{name: "tar relative link out of root", archive: resolve.ArchiveTarGzip, items: []archiveItem{
			{name: "prebuilts/evil", link: "../../../../.."},
			{name: "prebuilts/evil/pwned", body: "x"},
		}},
		{name: "zip relative link out of root", archive: resolve.ArchiveZip, items: []archiveItem{
			{name: "prebuilts/evil", link: "../../../../.."},
			{name: "prebuilts/evil/pwned", body: "x"},
		}},
		{name: "tar in-root link then file", archive: resolve.ArchiveTarGzip, items: []archiveItem{
			{name: "prebuilts/alias", link: "lib64"},
			{name: "prebuilts/lib64/real.so", body: "so"},
			{name: "prebuilts/alias/pwned", body: "x"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload []byte
			if tc.archive == resolve.ArchiveZip {
				payload = mustBuildZipItems(t, tc.items)
			} else {
				payload = mustBuildTarGzipItems(t, tc.items)
			}
			server, _ := servePayload(t, payload)
			workDir := t.TempDir()
			desc := &resolve.Descriptor{
				Module:  redroid.ModuleWidevine,
				URL:     server.URL,
				Archive: tc.archive,
				Layout:  resolve.LayoutTree,
				Dest:    "widevine",
				Root:    "prebuilts",
				Into:    "vendor",
			}

			_, err := newTestStager().Stage(context.Background(), desc, workDir)
			assertFetchReason(t, err, ReasonFormat)
			if _, err := os.Lstat(filepath.Join(outside, "pwned")); !os.IsNotExist(err) {
				t.Fatalf("archive wrote outside the build context, err=%v", err)
			}
			if _, err := os.Stat(filepath.Join(workDir, "widevine")); !os.IsNotExist(err) {
				t.Fatalf("failed extraction left the module dir behind, err=%v", err)
			}
		})
	}
}

func TestStageKeepsInRootSymlinks(t *testing.T) {
	payload := mustBuildTarGzipItems(t, []archiveItem{
		{name: "prebuilts/lib64/libwvhidl.so", body: "so"},
		{name: "prebuilts/lib64/libwv.so", link: "libwvhidl.so"},
	})
	server, _ := servePayload(t, payload)
	workDir := t.TempDir()
	desc := &resolve.Descriptor{
		Module:  redroid.ModuleWidevine,
		URL:     server.URL,
		Archive: resolve.ArchiveTarGzip,
		Layout:  resolve.LayoutTree,
		Dest:    "widevine",
		Root:    "prebuilts",
		Into:    "vendor",
	}

	artifact, err := newTestStager().Stage(context.Background(), desc, workDir)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	link, err := os.Readlink(filepath.Join(artifact.Dir, "vendor", "lib64", "libwv.so"))
	if err != nil || link != "libwvhidl.so" {
		t.Fatalf("expected relative symlink to be kept, link=%q err=%v", link, err)
	}
}

func TestStageTarArchives(t *testing.T) {
	files := map[string]string{
		"prebuilts/lib64/libwvhidl.so": "so",
		"prebuilts/etc/init/wv.rc":     "rc",
	}
	cases := []struct {
		name    string
		archive resolve.ArchiveKind
		payload []byte
	}{
		{name: "gzip", archive: resolve.ArchiveTarGzip, payload: mustBuildTarGzip(t, files)},
		{name: "xz", archive: resolve.ArchiveTarXz, payload: mustBuildTarXz(t, files)},
		{name: "zstd", archive: resolve.ArchiveTarZstd, payload: mustBuildTarZstd(t, files)},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			server, _ := servePayload(t, tc.payload)
			desc := &resolve.Descriptor{
				Module:   redroid.ModuleWidevine,
				URL:      server.URL,
				Archive:  tc.archive,
				Layout:   resolve.LayoutTree,
				Dest:     "widevine",
				Root:     "prebuilts",
				Into:     "vendor",
				Checksum: "blake3:" + shared.BLAKE3Hex(tc.payload),
			}
			artifact, err := newTestStager().Stage(context.Background(), desc, t.TempDir())
			if err != nil {
				t.Fatalf("Stage failed: %v", err)
			}
			if got := mustReadFile(t, filepath.Join(artifact.Dir, "vendor/lib64/libwvhidl.so")); got != "so" {
				t.Fatalf("unexpected content: %q", got)
			}
			if got := mustReadFile(t, filepath.Join(artifact.Dir, "vendor/etc/init/wv.rc")); got != "rc" {
				t.Fatalf("unexpected content: %q", got)
			}
		})
	}
}

func TestStageLiteGAppsLayout(t *testing.T) {
	inner := mustBuildTarXz(t, map[string]string{
		"x86_64/33/system/priv-app/PrebuiltGmsCore/PrebuiltGmsCore.apk": "gms",
		"x86_64/33/system/etc/permissions/privapp.xml":                  "xml",
		"x86_64/33/module.prop":                                         "ignored",
	})
	payload := mustBuildZip(t, map[string]string{
		"files/files.tar.xz": string(inner),
		"README.md":          "readme",
	})
	server, _ := servePayload(t, payload)
	desc := &resolve.Descriptor{
		Module:   redroid.ModuleGMS,
		Provider: redroid.GMSLiteGApps,
		URL:      server.URL,
		Archive:  resolve.ArchiveZip,
		Layout:   resolve.LayoutLiteGApps,
		Dest:     "litegapps",
		Into:     "system",
	}
	artifact, err := newTestStager().Stage(context.Background(), desc, t.TempDir())
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	if got := mustReadFile(t, filepath.Join(artifact.Dir, "system/priv-app/PrebuiltGmsCore/PrebuiltGmsCore.apk")); got != "gms" {
		t.Fatalf("unexpected content: %q", got)
	}
	if got := countFiles(t, artifact.Dir); got != 2 {
		t.Fatalf("expected 2 staged files, got %d", got)
	}
}

func TestStageOpenGAppsLayout(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{
		"Core/gmscore-x86_64.tar.lz": string(mustBuildTarLzip(t, map[string]string{
			"gmscore-x86_64/nodpi/priv-app/PrebuiltGmsCore/PrebuiltGmsCore.apk": "nodpi",
			"gmscore-x86_64/240/priv-app/PrebuiltGmsCore/PrebuiltGmsCore.apk":   "240",
		})),
		"Core/gsfcore-all.tar.lz": string(mustBuildTarLzip(t, map[string]string{
			"gsfcore-all/nodpi/app/GoogleServicesFramework/GoogleServicesFramework.apk": "gsf",
		})),
		"Core/vending-common.tar.lz": string(mustBuildTarLzip(t, map[string]string{
			"vending-common/common/etc/permissions/com.android.vending.xml": "perm",
		})),
		"Core/setupwizarddefault-x86_64.tar.lz": string(mustBuildTarLzip(t, map[string]string{
			"setupwizarddefault-x86_64/nodpi/priv-app/SetupWizard/SetupWizard.apk": "wizard",
		})),
		"installer.sh": "#!/sbin/sh",
	})
	server, _ := servePayload(t, payload)
	desc := &resolve.Descriptor{
		Module:   redroid.ModuleGMS,
		Provider: redroid.GMSOpenGApps,
		URL:      server.URL,
		Archive:  resolve.ArchiveZip,
		Layout:   resolve.LayoutOpenGApps,
		Dest:     "opengapps",
		Into:     "system",
		Checksum: "md5:" + shared.MD5Hex(payload),
	}
	artifact, err := newTestStager().Stage(context.Background(), desc, t.TempDir())
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	expected := map[string]string{
		"system/priv-app/PrebuiltGmsCore/PrebuiltGmsCore.apk":                 "nodpi",
		"system/priv-app/GoogleServicesFramework/GoogleServicesFramework.apk": "gsf",
		"system/etc/permissions/com.android.vending.xml":                      "perm",
	}
	for rel, want := range expected {
		if got := mustReadFile(t, filepath.Join(artifact.Dir, rel)); got != want {
			t.Fatalf("%s: expected %q got %q", rel, want, got)
		}
	}
	if _, err := os.Stat(filepath.Join(artifact.Dir, "system/priv-app/SetupWizard")); !os.IsNotExist(err) {
		t.Fatalf("expected setup wizard to be skipped, err=%v", err)
	}
	if got := countFiles(t, artifact.Dir); got != len(expected) {
		t.Fatalf("expected %d staged files, got %d", len(expected), got)
	}
}

func TestStageUsesDownloadCache(t *testing.T) {
	payload := mustBuildZip(t, map[string]string{"system/a": "a"})
	server, hits := servePayload(t, payload)
	cacheDir := t.TempDir()
	stager := newTestStager()
	stager.CacheDir = cacheDir
	desc := treeDescriptor(server.URL, payload)

	first, err := stager.Stage(context.Background(), desc, t.TempDir())
	if err != nil {
		t.Fatalf("first Stage failed: %v", err)
	}
	cached := filepath.Join(cacheDir, "md5-"+shared.MD5Hex(payload), "mindthegapps.zip")
	if _, err := os.Stat(cached); err != nil {
		t.Fatalf("expected cached archive: %v", err)
	}
	if err := first.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, err := stager.Stage(context.Background(), desc, t.TempDir()); err != nil {
		t.Fatalf("second Stage failed: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected cache hit, got %d downloads", got)
	}

	if err := os.WriteFile(cached, []byte("corrupt"), 0o644); err != nil {
		t.Fatalf("corrupt cache: %v", err)
	}
	if _, err := stager.Stage(context.Background(), desc, t.TempDir()); err != nil {
		t.Fatalf("third Stage failed: %v", err)
	}
	if got := atomic.LoadInt32(hits); got != 2 {
		t.Fatalf("expected corrupt cache entry to be downloaded again, got %d downloads", got)
	}
}

func TestStageRejectsInvalidDest(t *testing.T) {
	for _, dest := range []string{"", "..", "a/b", ".rdpatch"} {
		desc := &resolve.Descriptor{URL: "http://127.0.0.1:1/", Dest: dest, Archive: resolve.ArchiveZip}
		if _, err := newTestStager().Stage(context.Background(), desc, t.TempDir()); err == nil {
			t.Fatalf("expected dest %q to be rejected", dest)
		}
	}
}

func TestPlannedArtifactHasNoDirectory(t *testing.T) {
	a := Planned(&resolve.Descriptor{Module: redroid.ModuleNDK, Dest: "ndk"})
	if a.Dir != "" || a.Dest != "ndk" || a.Module != redroid.ModuleNDK {
		t.Fatalf("unexpected planned artifact: %+v", a)
	}
	if err := a.Remove(); err != nil {
		t.Fatalf("Remove on planned artifact failed: %v", err)
	}
}
