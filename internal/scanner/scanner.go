// Package scanner walks a repository and collects the source files the
// analysis stages should look at. It honors the repository's
// .quarryignore file (gitignore syntax) and skips binary or oversized
// files. The core pipeline never parses source code itself; the
// scanner only hands file contents to the model-backed stages.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/mod/modfile"
)

// MaxFileBytes is the largest file the scanner will hand to a stage.
// Anything bigger is almost certainly generated or vendored.
const MaxFileBytes = 256 * 1024

// Source extensions considered analyzable. Lock files, images, and
// minified bundles stay out of the model's context window.
var sourceExtensions = map[string]bool{
	".php": true, ".go": true, ".py": true, ".js": true, ".ts": true,
	".jsx": true, ".tsx": true, ".rb": true, ".java": true, ".cs": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".rs": true,
	".sh": true, ".sql": true,
}

// Directories never worth analyzing, regardless of ignore rules
var skipDirs = map[string]bool{
	".git": true, ".quarry": true, "node_modules": true, "vendor": true,
	".idea": true, ".vscode": true, "reports": true,
}

// SourceFile is one file handed to an analysis stage
type SourceFile struct {
	// Path is repository-relative with forward slashes
	Path string

	// Content is the full file text
	Content string
}

// RepoInfo holds metadata about the scanned repository
type RepoInfo struct {
	Root   string
	Module string // Go module path when the repo has a go.mod, else empty
	Files  int    // count of analyzable files found
}

// Scanner walks one repository root
type Scanner struct {
	root    string
	matcher *ignore.GitIgnore
}

// New creates a scanner for the repository at root. ignoreFile is a
// path relative to root (usually .quarryignore); a missing ignore file
// simply means nothing extra is excluded.
func New(root, ignoreFile string) (*Scanner, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("repository root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root is not a directory: %s", root)
	}

	var matcher *ignore.GitIgnore
	if ignoreFile != "" {
		ignorePath := filepath.Join(root, ignoreFile)
		if _, err := os.Stat(ignorePath); err == nil {
			matcher, err = ignore.CompileIgnoreFile(ignorePath)
			if err != nil {
				return nil, fmt.Errorf("failed to compile %s: %w", ignoreFile, err)
			}
		}
	}

	return &Scanner{root: root, matcher: matcher}, nil
}

// Scan walks the repository and returns the analyzable source files in
// deterministic (sorted) order, plus repository metadata.
func (s *Scanner) Scan() ([]SourceFile, *RepoInfo, error) {
	var files []SourceFile

	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(s.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if s.matcher != nil && s.matcher.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !sourceExtensions[strings.ToLower(filepath.Ext(rel))] {
			return nil
		}
		if s.matcher != nil && s.matcher.MatchesPath(rel) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if info.Size() > MaxFileBytes {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", rel, readErr)
		}
		if !utf8.Valid(content) {
			return nil
		}

		files = append(files, SourceFile{Path: rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("repository walk failed: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	repo := &RepoInfo{
		Root:   s.root,
		Module: s.goModule(),
		Files:  len(files),
	}
	return files, repo, nil
}

// goModule reads the module path from go.mod if the target repository
// is a Go module. Best-effort metadata for the report header.
func (s *Scanner) goModule() string {
	data, err := os.ReadFile(filepath.Join(s.root, "go.mod"))
	if err != nil {
		return ""
	}
	return modfile.ModulePath(data)
}
