package filexfer

import (
	"os"
	"path/filepath"
	"strings"
)

// matchNames splits a comma-separated glob list from a Login's MatchName
// field, mirroring fileserver.cpp's CDir::OpenDir(path, matchname, ...)
// argument.
func matchNames(spec string) []string {
	if strings.TrimSpace(spec) == "" {
		return []string{"*"}
	}
	parts := strings.Split(spec, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// walkEntry is one file found by Walk, relative to root.
type walkEntry struct {
	RelPath string
	AbsPath string
	Size    int64
	MTime   int64
}

// Walk lists every regular file under root matching any of matchSpec's
// glob patterns, descending into subdirectories only when recursive is
// true — the Go equivalent of CDir::OpenDir's andchild flag.
func Walk(root string, matchSpec string, recursive bool) ([]walkEntry, error) {
	patterns := matchNames(matchSpec)
	var out []walkEntry

	var visit func(dir, relPrefix string) error
	visit = func(dir, relPrefix string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			rel := e.Name()
			if relPrefix != "" {
				rel = filepath.Join(relPrefix, e.Name())
			}
			if e.IsDir() {
				if recursive {
					if err := visit(full, rel); err != nil {
						return err
					}
				}
				continue
			}
			if !matchAny(patterns, e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, walkEntry{
				RelPath: rel,
				AbsPath: full,
				Size:    info.Size(),
				MTime:   info.ModTime().Unix(),
			})
		}
		return nil
	}

	if err := visit(root, ""); err != nil {
		return nil, err
	}
	return out, nil
}
