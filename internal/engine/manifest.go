package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ShabbirHasan1/alt-sendme/internal/events"
)

// manifestEntry describes one file in transfer order. Name is a
// forward-slash relative path; for a shared directory the first segment is
// the directory itself, so the receiver reproduces the layout and the
// display name can collapse to it.
type manifestEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`

	// absPath is the local source path; sender-side only, never on the wire.
	absPath string
}

// manifest is the first message on the data channel: the complete file list
// and total payload size. The byte stream that follows is the concatenation
// of the files in manifest order, which is what makes offset-based
// resumption possible.
type manifest struct {
	Files     []manifestEntry `json:"files"`
	TotalSize int64           `json:"totalSize"`
}

func (m *manifest) names() []string {
	names := make([]string, len(m.Files))
	for i, f := range m.Files {
		names[i] = f.Name
	}
	return names
}

func (m *manifest) encode() (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// importPath indexes the shared path into a manifest, checksumming each file
// and reporting the import lifecycle on the bus. Symlinks are skipped.
func (e *Engine) importPath(path string) (*manifest, error) {
	e.bus.Publish(events.ImportStarted, "")

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	type source struct {
		name string
		abs  string
		size int64
	}
	var sources []source

	if info.IsDir() {
		root := filepath.Dir(path)
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			sources = append(sources, source{
				name: filepath.ToSlash(rel),
				abs:  p,
				size: fi.Size(),
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		sources = append(sources, source{
			name: filepath.Base(path),
			abs:  path,
			size: info.Size(),
		})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("nothing to share under %s", path)
	}

	e.bus.Publish(events.ImportFileCount, strconv.Itoa(len(sources)))

	man := &manifest{}
	for i, src := range sources {
		sum, err := checksumFile(src.abs)
		if err != nil {
			return nil, fmt.Errorf("failed to checksum %s: %w", src.abs, err)
		}
		man.Files = append(man.Files, manifestEntry{
			Name:     src.name,
			Size:     src.size,
			Checksum: sum,
			absPath:  src.abs,
		})
		man.TotalSize += src.size

		done := i + 1
		e.bus.Publish(events.ImportProgress, fmt.Sprintf("%d:%d:%d", done, len(sources), done*100/len(sources)))
	}

	e.bus.Publish(events.ImportCompleted, "")
	return man, nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// validEntryName rejects manifest entries whose name would escape the
// destination directory.
func validEntryName(name string) bool {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." || part == "" {
			return false
		}
	}
	return true
}
