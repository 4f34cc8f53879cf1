package stage

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pirakansa/rdpatch/internal/cli/resolve"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// unpack extracts the archive at archivePath into root following the
// descriptor's layout.
func unpack(desc *resolve.Descriptor, archivePath, root string) error {
	switch desc.Layout {
	case resolve.LayoutTree, "":
		return unpackTree(desc, archivePath, root)
	case resolve.LayoutOpenGApps:
		return unpackOpenGApps(desc, archivePath, root)
	case resolve.LayoutLiteGApps:
		return unpackLiteGApps(desc, archivePath, root)
	default:
		return fmt.Errorf("unsupported layout %q", desc.Layout)
	}
}

func unpackTree(desc *resolve.Descriptor, archivePath, root string) error {
	found := desc.Root == ""
	err := walkArchive(archivePath, desc.Archive, func(entry archiveEntry, body io.Reader) error {
		rel, ok := underRoot(entry.path, desc.Root)
		if !ok {
			return nil
		}
		found = true
		if rel == "" {
			return nil
		}
		return writeEntry(root, path.Join(desc.Into, rel), entry, body)
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("path %q not found in archive", desc.Root)
	}
	return nil
}

func underRoot(name, root string) (string, bool) {
	root = strings.Trim(root, "/")
	if root == "" {
		return name, true
	}
	if name == root {
		return "", true
	}
	if strings.HasPrefix(name, root+"/") {
		return strings.TrimPrefix(name, root+"/"), true
	}
	return "", false
}

const liteGAppsPayload = "files/files.tar.xz"

// LiteGApps zips wrap a tar.xz payload laid out as <arch>/<sdk>/system/...
func unpackLiteGApps(desc *resolve.Descriptor, archivePath, root string) error {
	found := false
	err := walkArchive(archivePath, desc.Archive, func(entry archiveEntry, body io.Reader) error {
		if entry.path != liteGAppsPayload || body == nil {
			return nil
		}
		found = true
		xzReader, err := xz.NewReader(body)
		if err != nil {
			return fmt.Errorf("%s: %w", liteGAppsPayload, err)
		}
		return walkTar(xzReader, func(inner archiveEntry, innerBody io.Reader) error {
			rel, ok := afterSegment(inner.path, "system")
			if !ok || rel == "" {
				return nil
			}
			return writeEntry(root, path.Join(desc.Into, rel), inner, innerBody)
		})
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("LiteGApps payload %s not found in archive", liteGAppsPayload)
	}
	return nil
}

func afterSegment(name, segment string) (string, bool) {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		if part == segment {
			return strings.Join(parts[i+1:], "/"), true
		}
	}
	return "", false
}

var (
	// Setup wizards break first boot of a headless container.
	openGAppsSkipped = map[string]bool{
		"setupwizarddefault-x86_64.tar.lz": true,
		"setupwizardtablet-x86_64.tar.lz":  true,
	}
	// Bundles that carry configuration files rather than an APK.
	openGAppsCommon = map[string]bool{
		"defaultetc-common.tar.lz":        true,
		"defaultframework-common.tar.lz":  true,
		"googlepixelconfig-common.tar.lz": true,
		"vending-common.tar.lz":           true,
	}
)

// unpackOpenGApps installs the Core/*.tar.lz bundles of an OpenGApps zip.
// Each bundle is laid out as <package>/<variant>/<path>, where variant is
// "common" for configuration bundles and a screen density for APKs.
func unpackOpenGApps(desc *resolve.Descriptor, archivePath, root string) error {
	bundles := 0
	err := walkArchive(archivePath, desc.Archive, func(entry archiveEntry, body io.Reader) error {
		dir, name := path.Split(entry.path)
		if dir != "Core/" || !strings.HasSuffix(name, ".tar.lz") || body == nil {
			return nil
		}
		bundles++
		if openGAppsSkipped[name] {
			return nil
		}
		lzReader, err := lzip.NewReader(body)
		if err != nil {
			return fmt.Errorf("bundle %s: %w", name, err)
		}
		entries, err := readBundle(lzReader)
		if err != nil {
			return fmt.Errorf("bundle %s: %w", name, err)
		}
		return writeBundle(root, desc.Into, entries, openGAppsCommon[name])
	})
	if err != nil {
		return err
	}
	if bundles == 0 {
		return fmt.Errorf("no Core/*.tar.lz bundles found in OpenGApps archive")
	}
	return nil
}

type bundleEntry struct {
	archiveEntry
	body []byte
}

func readBundle(r io.Reader) ([]bundleEntry, error) {
	var out []bundleEntry
	err := walkTar(r, func(entry archiveEntry, body io.Reader) error {
		item := bundleEntry{archiveEntry: entry}
		if entry.link == "" && !entry.mode.IsDir() {
			b, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			item.body = b
		}
		out = append(out, item)
		return nil
	})
	return out, err
}

func writeBundle(root, into string, entries []bundleEntry, common bool) error {
	variant := "common"
	if !common {
		variant = pickVariant(entries)
	}
	for _, entry := range entries {
		parts := strings.SplitN(entry.path, "/", 3)
		if len(parts) < 3 || parts[1] != variant {
			continue
		}
		rel := parts[2]
		if !common {
			// <app|priv-app>/<name>/...; GMS packages need to be privileged.
			_, rest, ok := strings.Cut(rel, "/")
			if !ok {
				continue
			}
			rel = "priv-app/" + rest
		}
		if err := writeEntry(root, path.Join(into, rel), entry.archiveEntry, bytes.NewReader(entry.body)); err != nil {
			return err
		}
	}
	return nil
}

// pickVariant prefers density independent APKs.
func pickVariant(entries []bundleEntry) string {
	seen := map[string]bool{}
	for _, entry := range entries {
		parts := strings.SplitN(entry.path, "/", 3)
		if len(parts) >= 2 {
			seen[parts[1]] = true
		}
	}
	if seen["nodpi"] {
		return "nodpi"
	}
	variants := make([]string, 0, len(seen))
	for v := range seen {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	if len(variants) == 0 {
		return ""
	}
	return variants[0]
}
