package fs

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"pdfrag/internal/domain"
)

// PDFPattern matches PDF files directly inside a directory.
const PDFPattern = "*.[pP][dD][fF]"

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// ListPDFs returns the PDF files directly inside dir, sorted by name.
// A missing directory is a LoadError; an empty one is not.
func ListPDFs(dir string) ([]FileInfo, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, domain.E(domain.KindLoad, dir, err)
	}
	if !info.IsDir() {
		return nil, domain.Errorf(domain.KindLoad, "%s is not a directory", dir)
	}

	matches, err := doublestar.Glob(os.DirFS(dir), PDFPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, domain.E(domain.KindLoad, dir, err)
	}
	sort.Strings(matches)

	files := make([]FileInfo, 0, len(matches))
	for _, m := range matches {
		path := filepath.Join(dir, m)
		st, err := os.Stat(path)
		if err != nil {
			return nil, domain.E(domain.KindLoad, path, err)
		}
		files = append(files, FileInfo{
			Path:    path,
			ModTime: st.ModTime().Unix(),
			Size:    st.Size(),
		})
	}
	return files, nil
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SanitizeName replaces every character outside [A-Za-z0-9._-] with '_'
// and drops any directory part.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// IsPDFName reports whether name carries a .pdf extension.
func IsPDFName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// Upload is one file received from a client.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// SaveUploads writes every PDF upload into dir under a sanitized name and
// returns the original names of the accepted files. Non-PDF uploads are
// ignored.
func SaveUploads(dir string, uploads []Upload) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var accepted []string
	for _, u := range uploads {
		if !IsPDFName(u.Name) {
			continue
		}
		if err := saveOne(filepath.Join(dir, SanitizeName(u.Name)), u); err != nil {
			return accepted, err
		}
		accepted = append(accepted, u.Name)
	}
	return accepted, nil
}

func saveOne(dst string, u Upload) error {
	src, err := u.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
