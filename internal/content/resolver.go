// Package content decides which document content source is active: a
// production build directory, a development document file, or inline
// development text. Resolution is a strict-priority scan so production
// behavior is never silently overridden by leftover development
// configuration.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// EntryFile is the conventional entry document expected under a production
// content root.
const EntryFile = "index.html"

// Kind identifies which terminal state a resolution reached.
type Kind int

const (
	// KindUnresolved is the terminal failure state: no content source was
	// usable.
	KindUnresolved Kind = iota
	// KindPath means the resolution selected an on-disk document.
	KindPath
	// KindInline means the resolution selected literal document text.
	KindInline
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindInline:
		return "inline"
	default:
		return "unresolved"
	}
}

// Resolution is the outcome of one priority scan. Exactly one of Path and
// Inline is meaningful, selected by Kind; Reason is set only for
// KindUnresolved.
type Resolution struct {
	Kind   Kind
	Path   string
	Inline string
	Reason string
}

// UnresolvedError is returned to the host when the resolver reaches its
// terminal failure state. Unlike boundary-crossing errors it is a plain Go
// error: there is no document-side recipient yet to receive an envelope.
type UnresolvedError struct {
	Reason string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("content unresolved: %s", e.Reason)
}

// Resolver holds the three optional content inputs. Each may be set
// independently, before or after prior resolutions; Resolve re-runs the full
// scan every time and caches nothing.
type Resolver struct {
	mu             sync.Mutex
	productionRoot string
	devPath        string
	devInline      string
}

// NewResolver returns a resolver with no inputs configured.
func NewResolver() *Resolver {
	return &Resolver{}
}

// SetProductionRoot sets the directory expected to contain the entry
// document. An empty string clears the input.
func (r *Resolver) SetProductionRoot(dir string) {
	r.mu.Lock()
	r.productionRoot = dir
	r.mu.Unlock()
}

// SetDevelopmentPath sets the development document file path. An empty
// string clears the input.
func (r *Resolver) SetDevelopmentPath(path string) {
	r.mu.Lock()
	r.devPath = path
	r.mu.Unlock()
}

// SetDevelopmentInline sets literal document text used as the last fallback.
// An empty string clears the input.
func (r *Resolver) SetDevelopmentInline(text string) {
	r.mu.Lock()
	r.devInline = text
	r.mu.Unlock()
}

// Resolve runs the priority scan: production entry file, then development
// file, then inline text. The first satisfied source wins; with none
// satisfied the result is KindUnresolved with a reason enumerating what was
// absent or missing.
//
// The scan is a pure function of the three inputs and filesystem existence
// checks at call time.
func (r *Resolver) Resolve() Resolution {
	r.mu.Lock()
	productionRoot, devPath, devInline := r.productionRoot, r.devPath, r.devInline
	r.mu.Unlock()

	var missing []string

	if productionRoot != "" {
		entry := filepath.Join(productionRoot, EntryFile)
		if fileExists(entry) {
			return Resolution{Kind: KindPath, Path: entry}
		}
		missing = append(missing, fmt.Sprintf("production entry file missing: %s", entry))
	} else {
		missing = append(missing, "production content root not set")
	}

	if devPath != "" {
		if fileExists(devPath) {
			return Resolution{Kind: KindPath, Path: devPath}
		}
		missing = append(missing, fmt.Sprintf("development document missing: %s", devPath))
	} else {
		missing = append(missing, "development document path not set")
	}

	if devInline != "" {
		return Resolution{Kind: KindInline, Inline: devInline}
	}
	missing = append(missing, "development inline content not set")

	return Resolution{Kind: KindUnresolved, Reason: strings.Join(missing, "; ")}
}

// ResolveOrErr is the host-facing form: terminal success yields the
// resolution, terminal failure yields *UnresolvedError.
func (r *Resolver) ResolveOrErr() (Resolution, error) {
	res := r.Resolve()
	if res.Kind == KindUnresolved {
		return res, &UnresolvedError{Reason: res.Reason}
	}
	return res, nil
}

// ValidateContentRoot reports structural problems with a production content
// root: whether it exists, is a directory, contains the entry file, and has
// any of the common asset directories. ok is true only when no issues were
// found.
func ValidateContentRoot(dir string) (ok bool, issues []string) {
	info, err := os.Stat(dir)
	if err != nil {
		return false, []string{fmt.Sprintf("content root does not exist: %s", dir)}
	}
	if !info.IsDir() {
		return false, []string{fmt.Sprintf("content root is not a directory: %s", dir)}
	}

	if !fileExists(filepath.Join(dir, EntryFile)) {
		issues = append(issues, fmt.Sprintf("no %s found (production build missing)", EntryFile))
	}

	found := false
	for _, asset := range []string{"js", "css", "assets", "static"} {
		if info, err := os.Stat(filepath.Join(dir, asset)); err == nil && info.IsDir() {
			found = true
			break
		}
	}
	if !found {
		issues = append(issues, "no common web asset directories found (js, css, assets, static)")
	}

	return len(issues) == 0, issues
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
