package coco2yolo

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// filesInDir returns the names of all regular files found directly in directory dirPath, sorted.
// Hidden files such as ".DS_Store" and temporary files left by writeFileAtomic are skipped.
func filesInDir(fs afero.Fs, dirPath string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read directory %q", dirPath)
	}

	files := make([]string, 0, len(entries))
	for _, file := range entries {
		name := file.Name()
		// Must be a regular file or a symlink.
		if !file.Mode().IsRegular() && (file.Mode()&os.ModeSymlink == 0) {
			continue
		}
		if strings.HasPrefix(name, ".") || strings.HasSuffix(name, tempSuffix) {
			log.Debugf("Ignoring %q in %s", name, dirPath)
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)

	return files, nil
}

// imageFilesInDir works like filesInDir but only returns files with a known image extension.
func imageFilesInDir(fs afero.Fs, dirPath string) ([]string, error) {
	files, err := filesInDir(fs, dirPath)
	if err != nil {
		return nil, err
	}

	images := files[:0]
	for _, name := range files {
		switch strings.ToLower(filepath.Ext(name)) {
		case ".jpg", ".jpeg", ".png":
			images = append(images, name)
		default:
			log.Printf("Not an image, skipping %q", filepath.Join(dirPath, name))
		}
	}
	return images, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", errors.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

const tempSuffix = ".tmp"

// writeFileAtomic writes data to a temporary file next to path and renames it into place, so that
// readers never observe a partially written file.
func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	return writeAtomic(fs, path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeAtomic is writeFileAtomic for content that is streamed by write.
func writeAtomic(fs afero.Fs, path string, write func(w io.Writer) error) (err error) {
	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+file+".*"+tempSuffix)
	if err != nil {
		return errors.Wrapf(err, "cannot create a temporary file for %q", path)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if err = write(tmp); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "cannot write %q", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "cannot write %q", path)
	}
	if err = fs.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "cannot move %q into place", path)
	}
	return nil
}

// fileExists reports whether a regular file exists at path.
func fileExists(fs afero.Fs, path string) (bool, error) {
	info, err := fs.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, errors.Wrapf(err, "cannot access %q", path)
	}
	return info.Mode().IsRegular(), nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
