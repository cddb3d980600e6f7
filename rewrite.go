package xlvba

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/flate"
)

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

type rawEntry struct {
	header zip.FileHeader
	data   []byte
}

// rewritePackage rebuilds the ZIP at path. Entries not named in replace are
// copied in their stored (compressed) form, so untouched parts stay
// byte-identical. Replacement entries are deflated with a zero modification
// time, which makes repeated rewrites with the same inputs byte-identical.
// The original file is swapped via write-temp-then-rename.
func rewritePackage(path string, replace map[string][]byte) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: open package %s: %v", ErrRepair, path, err)
	}
	var kept []rawEntry
	for _, f := range zr.File {
		if _, ok := replace[f.Name]; ok {
			continue
		}
		raw, err := f.OpenRaw()
		if err != nil {
			zr.Close()
			return fmt.Errorf("%w: read %s: %v", ErrRepair, f.Name, err)
		}
		data, err := io.ReadAll(raw)
		if err != nil {
			zr.Close()
			return fmt.Errorf("%w: read %s: %v", ErrRepair, f.Name, err)
		}
		kept = append(kept, rawEntry{header: f.FileHeader, data: data})
	}
	zr.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if err := writePackage(tmp, kept, replace); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func writePackage(w io.Writer, kept []rawEntry, replace map[string][]byte) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	for i := range kept {
		ew, err := zw.CreateRaw(&kept[i].header)
		if err != nil {
			return err
		}
		if _, err := ew.Write(kept[i].data); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(replace))
	for name := range replace {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ew, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return err
		}
		if _, err := ew.Write(replace[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}
