package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tensor-ninja/agent-fix/internal/config"
	"github.com/tensor-ninja/agent-fix/internal/index"
)

// directories never worth embedding.
var skippedDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	"node_modules": {},
	"__pycache__":  {},
	"venv":         {},
	".venv":        {},
	"dist":         {},
	"build":        {},
}

// Workspace walks a source tree and collects documents for indexing.
// All reads stay inside the configured root.
type Workspace struct {
	root         string
	extensions   map[string]struct{}
	maxFiles     int
	maxFileBytes int
}

// NewWorkspace builds a collector rooted at cfg.Workspace (defaults to the
// current working directory).
func NewWorkspace(cfg config.IndexConfig) (*Workspace, error) {
	root := cfg.Workspace
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", absRoot)
	}

	extensions := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}
	if len(extensions) == 0 {
		extensions[".py"] = struct{}{}
	}

	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 500
	}
	maxFileBytes := cfg.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = 128 * 1024
	}

	return &Workspace{
		root:         absRoot,
		extensions:   extensions,
		maxFiles:     maxFiles,
		maxFileBytes: maxFileBytes,
	}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string { return w.root }

// Collect walks the workspace and returns one document per matching source
// file. Identifiers are root-relative with forward slashes. Files over the
// size cap are skipped, and the walk stops once the file cap is reached.
func (w *Workspace) Collect(ctx context.Context) ([]index.Document, error) {
	var docs []index.Document
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if _, skip := skippedDirs[d.Name()]; skip && path != w.root {
				return filepath.SkipDir
			}
			if strings.HasPrefix(d.Name(), ".") && path != w.root {
				return filepath.SkipDir
			}
			return nil
		}
		if len(docs) >= w.maxFiles {
			return filepath.SkipAll
		}
		if _, ok := w.extensions[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > int64(w.maxFileBytes) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		content := string(data)
		if strings.TrimSpace(content) == "" {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		docs = append(docs, index.Document{
			Identifier: filepath.ToSlash(rel),
			Content:    content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ReadFile returns the contents of a root-relative file. Absolute paths and
// paths escaping the root are rejected.
func (w *Workspace) ReadFile(path string) (string, error) {
	resolved, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *Workspace) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute paths are not allowed")
	}
	abs := filepath.Clean(filepath.Join(w.root, clean))
	if !strings.HasPrefix(abs, w.root+string(os.PathSeparator)) && abs != w.root {
		return "", fmt.Errorf("path escapes workspace root")
	}
	return abs, nil
}
