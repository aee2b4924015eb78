package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/appkit/amd/internal/amerr"
)

// unpack extracts a (possibly gzip-compressed) tar stream into dest,
// grounded verbatim on runtime/unpack.go's untar/untarGzip: path
// traversal, whiteout, and symlink/hardlink containment are all
// checked the same way, since package archives carry the same
// security concerns as the driver images that routine was built for.
func unpack(dest string, r io.Reader) error {
	peeked := bufPeek(r, 2)
	if len(peeked) == 2 && peeked[0] == 0x1f && peeked[1] == 0x8b {
		gz, err := gzip.NewReader(io.MultiReader(bytes.NewReader(peeked), r))
		if err != nil {
			return amerr.Parse.Wrap(err, "opening gzip package stream")
		}
		defer gz.Close()
		return untar(dest, gz)
	}
	return untar(dest, io.MultiReader(bytes.NewReader(peeked), r))
}

// bufPeek reads up to n bytes from r without losing them for a later
// full read (the caller re-prepends them via io.MultiReader).
func bufPeek(r io.Reader, n int) []byte {
	buf := make([]byte, n)
	read, _ := io.ReadFull(r, buf)
	return buf[:read]
}

func untar(dest string, r io.Reader) error {
	entries := make(map[string]bool)
	var dirs []*tar.Header
	tr := tar.NewReader(r)

loop:
	for {
		hdr, err := tr.Next()
		switch err {
		case io.EOF:
			break loop
		case nil:
		default:
			return amerr.Parse.Wrap(err, "advancing package tar stream")
		}

		hdr.Name = filepath.Clean(hdr.Name)
		if !strings.HasSuffix(hdr.Name, string(os.PathSeparator)) {
			parent := filepath.Dir(hdr.Name)
			parentPath := filepath.Join(dest, parent)
			if _, err2 := os.Lstat(parentPath); err2 != nil && os.IsNotExist(err2) {
				if err3 := os.MkdirAll(parentPath, 0755); err3 != nil {
					return amerr.System.Wrap(err3, "creating parent directory")
				}
			}
		}

		path := filepath.Join(dest, hdr.Name)
		if entries[path] {
			return amerr.Security.New(fmt.Sprintf("duplicate entry for %s", path))
		}
		entries[path] = true

		rel, err := filepath.Rel(dest, path)
		if err != nil {
			return amerr.System.Wrap(err, "resolving relative path")
		}
		if strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return amerr.Security.New(fmt.Sprintf("%q is outside of %q", hdr.Name, dest))
		}

		info := hdr.FileInfo()
		if strings.HasPrefix(info.Name(), ".wh.") {
			whited := strings.Replace(path, ".wh.", "", 1)
			if err := os.RemoveAll(whited); err != nil {
				return amerr.System.Wrap(err, "deleting whiteout path")
			}
			continue loop
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if fi, err := os.Lstat(path); !(err == nil && fi.IsDir()) {
				if err2 := os.MkdirAll(path, info.Mode()); err2 != nil {
					return amerr.System.Wrap(err2, "creating directory")
				}
			}

		case tar.TypeReg, tar.TypeRegA:
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, info.Mode())
			if err != nil {
				return amerr.System.Wrap(err, "opening file for extraction")
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return amerr.System.Wrap(err, "writing extracted file")
			}
			f.Close()

		case tar.TypeLink:
			target := filepath.Join(dest, hdr.Linkname)
			if !strings.HasPrefix(target, dest) {
				return amerr.Security.New(fmt.Sprintf("invalid hardlink %q -> %q", target, hdr.Linkname))
			}
			if err := os.Link(target, path); err != nil {
				return amerr.System.Wrap(err, "creating hardlink")
			}

		case tar.TypeSymlink:
			target := filepath.Join(filepath.Dir(path), hdr.Linkname)
			if !strings.HasPrefix(target, dest) {
				return amerr.Security.New(fmt.Sprintf("invalid symlink %q -> %q", path, hdr.Linkname))
			}
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				if os.IsExist(err) {
					_ = os.Remove(path)
					if err := os.Symlink(hdr.Linkname, path); err != nil {
						return amerr.System.Wrap(err, "recreating symlink")
					}
				} else {
					return amerr.System.Wrap(err, "creating symlink")
				}
			}

		case tar.TypeXGlobalHeader:
			return nil
		}

		if hdr.Typeflag == tar.TypeDir {
			dirs = append(dirs, hdr)
		}
	}

	for _, hdr := range dirs {
		path := filepath.Join(dest, hdr.Name)
		finfo := hdr.FileInfo()
		if err := os.Chtimes(path, time.Now().UTC(), finfo.ModTime()); err != nil {
			return amerr.System.Wrap(err, "fixing up directory mtime")
		}
	}
	return nil
}
