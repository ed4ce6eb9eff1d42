// File: internal/archive/archive.go
// Brief: Zip packaging of application source and dependency-archive merging.

// Package archive builds the zip artifacts the pipeline uploads and deploys.
// The tool packages Python Lambda sources, so the exclusion rules and the
// root marker file follow that layout: test and bytecode-cache directories
// never ship, compiled bytecode never ships, and a package marker can be
// forced at the archive root.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	zipExtension       = ".zip"
	compiledExtension  = ".pyc"
	rootMarkerFilename = "__init__.py"
)

// Directories excluded from every package regardless of spec.
var alwaysExcludedDirs = []string{"tests", "__pycache__"}

// BuildPackage walks sourceRoot and writes every surviving file into a new
// zip at dest, preserving the path relative to sourceRoot. A directory is
// pruned when its name matches the always-excluded set or excludeDirs; files
// with the compiled-bytecode extension are dropped. When addRootMarker is
// set, a marker entry is guaranteed at the archive root: the source tree's
// own marker when present, an empty entry otherwise.
func BuildPackage(dest, sourceRoot string, excludeDirs []string, addRootMarker bool) (err error) {
	skip := make(map[string]struct{}, len(alwaysExcludedDirs)+len(excludeDirs))
	for _, d := range alwaysExcludedDirs {
		skip[d] = struct{}{}
	}
	for _, d := range excludeDirs {
		skip[d] = struct{}{}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create package %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			os.Remove(dest)
		}
	}()
	zw := zip.NewWriter(out)

	markerWritten := false
	err = filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if _, excluded := skip[d.Name()]; excluded && path != sourceRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), compiledExtension) {
			return nil
		}
		rel, relErr := filepath.Rel(sourceRoot, path)
		if relErr != nil {
			return relErr
		}
		name := filepath.ToSlash(rel)
		if name == rootMarkerFilename {
			markerWritten = true
		}
		return writeFileEntry(zw, path, name)
	})
	if err == nil && addRootMarker && !markerWritten {
		_, err = zw.Create(rootMarkerFilename)
	}
	if err != nil {
		zw.Close()
		out.Close()
		return fmt.Errorf("build package %s: %w", dest, err)
	}
	if err = zw.Close(); err != nil {
		out.Close()
		return fmt.Errorf("finalize package %s: %w", dest, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("finalize package %s: %w", dest, err)
	}
	return nil
}

// MergeLibraries walks libRoot for dependency zip archives and appends every
// entry of each surviving archive to the package at target. A library is
// skipped when includeNames is non-empty and does not list it, or when
// excludeNames lists it. Entries already in the target are never rewritten
// or de-duplicated; a path produced by both the application and a library
// legally appears twice, and extraction behavior for duplicates is whatever
// the zip reader defines.
func MergeLibraries(target, libRoot string, excludeNames, includeNames []string) error {
	include := nameSet(includeNames)
	exclude := nameSet(excludeNames)
	return filepath.WalkDir(libRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), zipExtension) {
			return nil
		}
		if len(include) > 0 {
			if _, ok := include[d.Name()]; !ok {
				return nil
			}
		}
		if _, ok := exclude[d.Name()]; ok {
			return nil
		}
		if err := appendArchive(target, path); err != nil {
			return fmt.Errorf("merge %s into %s: %w", path, target, err)
		}
		return nil
	})
}

// appendArchive appends every entry of the archive at source to the archive
// at target. Existing target entries are carried over with their raw
// compressed bytes; appended entries are re-written deflated with fully open
// permission bits and a Unix origin tag so extraction is reproducible across
// platforms.
func appendArchive(target, source string) (err error) {
	src, err := zip.OpenReader(source)
	if err != nil {
		return err
	}
	defer src.Close()
	existing, err := zip.OpenReader(target)
	if err != nil {
		return err
	}

	tmp := target + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		existing.Close()
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(tmp)
		}
	}()

	zw := zip.NewWriter(out)
	for _, f := range existing.File {
		if err = zw.Copy(f); err != nil {
			existing.Close()
			return err
		}
	}
	if err = existing.Close(); err != nil {
		return err
	}
	for _, f := range src.File {
		if err = appendOpenEntry(zw, f); err != nil {
			return err
		}
	}
	if err = zw.Close(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func appendOpenEntry(zw *zip.Writer, f *zip.File) error {
	hdr := &zip.FileHeader{
		Name:   f.Name,
		Method: zip.Deflate,
	}
	mode := fs.FileMode(0o777)
	if f.FileInfo().IsDir() {
		mode |= fs.ModeDir
	}
	// SetMode also stamps the creator system as Unix.
	hdr.SetMode(mode)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(w, rc)
	return err
}

func writeFileEntry(zw *zip.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

func nameSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}
