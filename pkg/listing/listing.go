// Package listing renders HTML directory listings from the UI template.
package listing

import (
	"errors"
	"fmt"
	"html"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/l0n3m4n/exposerver/internal/models"
)

// Template placeholders substituted on every render.
const (
	PathPlaceholder  = "{directory_path}"
	RowsPlaceholder  = "{file_list}"
	TemplateRelPath  = "ui/index.html"
	parentDirRowHTML = `<tr><td><a href=".."><span class="icon icon-dir"></span>..</a></td><td>Directory</td><td>-</td><td></td></tr>`
)

var (
	// ErrListing is wrapped when a directory cannot be read.
	ErrListing = errors.New("cannot list directory")
	// ErrTemplateMissing means the listing template is not deployed.
	ErrTemplateMissing = errors.New("listing template missing")
)

// Renderer builds directory listing pages.
type Renderer struct {
	templatePath string
}

// NewRenderer creates a renderer using <assetsDir>/ui/index.html.
func NewRenderer(assetsDir string) *Renderer {
	return &Renderer{templatePath: filepath.Join(assetsDir, filepath.FromSlash(TemplateRelPath))}
}

// TemplatePath returns the template location
func (r *Renderer) TemplatePath() string {
	return r.templatePath
}

// CheckTemplate verifies the template is readable.
func (r *Renderer) CheckTemplate() error {
	_, err := r.loadTemplate()
	return err
}

func (r *Renderer) loadTemplate() (string, error) {
	b, err := os.ReadFile(r.templatePath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrTemplateMissing, r.templatePath, err)
	}
	return string(b), nil
}

// Entries lists dir sorted case-insensitively by name.
func Entries(dir string) ([]models.DirectoryEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListing, err)
	}

	entries := make([]models.DirectoryEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		// follow symlinks like a browser would
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			if info, err = de.Info(); err != nil {
				continue
			}
		}
		entry := models.DirectoryEntry{
			Name:  name,
			IsDir: info.IsDir(),
			Icon:  IconFor(name, info.IsDir()),
		}
		if !entry.IsDir {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
	return entries, nil
}

// Render lists dir and substitutes the rows and requestPath into the template.
func (r *Renderer) Render(dir, requestPath string) (string, error) {
	entries, err := Entries(dir)
	if err != nil {
		return "", err
	}
	tmpl, err := r.loadTemplate()
	if err != nil {
		return "", err
	}

	var rows strings.Builder
	if requestPath != "/" {
		rows.WriteString(parentDirRowHTML)
	}
	for _, e := range entries {
		writeRow(&rows, e)
	}

	content := strings.ReplaceAll(tmpl, PathPlaceholder, html.EscapeString(requestPath))
	content = strings.ReplaceAll(content, RowsPlaceholder, rows.String())
	return content, nil
}

func writeRow(b *strings.Builder, e models.DirectoryEntry) {
	link := html.EscapeString(url.PathEscape(e.Name))
	display := html.EscapeString(e.Name)
	kind, size, actions := "File", HumanSize(e.Size), ""
	if e.IsDir {
		link += "/"
		display += "/"
		kind, size = "Directory", "-"
	} else {
		actions = fmt.Sprintf(`<button class="copy-btn" data-url="%s">Copy URL</button>`, link)
	}
	fmt.Fprintf(b,
		`<tr><td><a href="%s"><span class="icon %s"></span>%s</a></td><td>%s</td><td class="size-cell">%s</td><td>%s</td></tr>`,
		link, e.Icon, display, kind, size, actions)
}

var sizeUnits = []string{"B", "kb", "mb", "gb", "tb"}

// HumanSize formats a byte count with binary units and two decimals, using
// the largest unit where the value stays below 1024.
func HumanSize(n int64) string {
	size := float64(n)
	unit := sizeUnits[0]
	for i, u := range sizeUnits {
		unit = u
		if size < 1024 || i == len(sizeUnits)-1 {
			break
		}
		size /= 1024
	}
	return fmt.Sprintf("%.2f %s", size, unit)
}
