// Package archive reads and writes the zip archives that carry batch inputs
// and multi-file results.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// Entry is one file to store in an archive.
type Entry struct {
	// Name is the path inside the archive.
	Name string
	// Path is the file on disk. When empty, Data is stored instead.
	Path string
	Data []byte
}

// Write creates a zip archive at out holding entries in order.
func Write(out string, entries []Entry) error {
	f, err := os.Create(out)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "zip", err)
	}
	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := addEntry(zw, e); err != nil {
			zw.Close()
			f.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return job.Wrap(job.ErrWorkspace, "zip", err)
	}
	return job.Wrap(job.ErrWorkspace, "zip", f.Close())
}

func addEntry(zw *zip.Writer, e Entry) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate})
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "zip", err)
	}
	if e.Path == "" {
		_, err = w.Write(e.Data)
		return job.Wrap(job.ErrWorkspace, "zip", err)
	}
	src, err := os.Open(e.Path)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "zip", err)
	}
	defer src.Close()
	_, err = io.Copy(w, src)
	return job.Wrap(job.ErrWorkspace, "zip", err)
}

// Member is one regular file from an extracted archive.
type Member struct {
	// Index is the member's position among the archive's file entries.
	Index int
	// Name is the entry name as stored in the archive.
	Name string
	// Path is the extracted file, empty when the entry was rejected.
	Path string
	// Rejected explains why the entry was not extracted.
	Rejected string
	// Err is set when the entry's data could not be read, for example a
	// checksum mismatch, corrupt compressed data or an oversized member.
	Err error
}

// MaxMemberSize bounds the uncompressed size of one extracted member.
const MaxMemberSize = 512 << 20

// Extract unpacks every file entry of the archive at src into
// dir/<index>/<basename>. Directory entries are ignored. Entries with
// absolute names or ".." elements are returned Rejected and nothing is
// written for them. A member whose data is damaged carries the error in Err
// and the remaining members are still extracted; only an unreadable central
// directory or a workspace failure fails the whole archive.
func Extract(src, dir string) ([]Member, error) {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) {
		// Unsafe names are rejected per entry below.
		err = nil
	}
	if err != nil {
		return nil, &job.Error{Kind: job.ErrInvalidInput, Op: "unzip", Msg: fmt.Sprintf("%s is not a zip archive", filepath.Base(src)), Err: err}
	}
	defer zr.Close()

	var members []Member
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() || strings.HasSuffix(zf.Name, "/") {
			continue
		}
		m := Member{Index: len(members), Name: zf.Name}
		members = append(members, m)
		if reason := unsafeName(zf.Name); reason != "" {
			members[m.Index].Rejected = reason
			continue
		}
		if !zf.Mode().IsRegular() {
			members[m.Index].Rejected = "not a regular file"
			continue
		}
		out := filepath.Join(dir, strconv.Itoa(m.Index), path.Base(zf.Name))
		if err := extractFile(zf, out); err != nil {
			if !job.IsKind(err, job.ErrInvalidInput) {
				return nil, err
			}
			members[m.Index].Err = err
			continue
		}
		members[m.Index].Path = out
	}
	return members, nil
}

func unsafeName(name string) string {
	clean := strings.ReplaceAll(name, `\`, "/")
	if path.IsAbs(clean) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "absolute path"
	}
	for _, elem := range strings.Split(clean, "/") {
		if elem == ".." {
			return "path escapes archive"
		}
	}
	if base := path.Base(clean); base == "." || base == "/" {
		return "empty name"
	}
	return ""
}

func extractFile(zf *zip.File, out string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		return job.Wrap(job.ErrWorkspace, "unzip", err)
	}
	rc, err := zf.Open()
	if err != nil {
		return &job.Error{Kind: job.ErrInvalidInput, Op: "unzip", Msg: zf.Name, Err: err}
	}
	defer rc.Close()

	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "unzip", err)
	}
	n, err := io.Copy(f, io.LimitReader(rc, MaxMemberSize+1))
	if err != nil {
		f.Close()
		os.Remove(out)
		return &job.Error{Kind: job.ErrInvalidInput, Op: "unzip", Msg: zf.Name, Err: err}
	}
	if n > MaxMemberSize {
		f.Close()
		os.Remove(out)
		return job.Errorf(job.ErrInvalidInput, "unzip", "%s exceeds %d bytes", zf.Name, MaxMemberSize)
	}
	return job.Wrap(job.ErrWorkspace, "unzip", f.Close())
}

// UniqueNames returns a name allocator that appends -<n> to the stem of any
// name already handed out.
func UniqueNames() func(name string) string {
	used := make(map[string]bool)
	return func(name string) string {
		if !used[name] {
			used[name] = true
			return name
		}
		ext := path.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for n := 1; ; n++ {
			c := fmt.Sprintf("%s-%d%s", stem, n, ext)
			if !used[c] {
				used[c] = true
				return c
			}
		}
	}
}
