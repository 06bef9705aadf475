// Package catalog persists the user's registered containers and launcher
// preferences as a single JSON document.
//
// The in-memory Catalog has one shape. Load accepts both the current
// `containersv2` list and the legacy path-only `containers` list, and Save
// always writes the current shape.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Descriptor is one registered container.
type Descriptor struct {
	ID   uuid.UUID `json:"id"`
	Path string    `json:"path"`

	// Cached metadata from container queries.
	Title  string            `json:"title,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
	Apps   []string          `json:"apps,omitempty"`
}

// Catalog is the launcher's persistent user state.
type Catalog struct {
	// Containers is sorted by Path with no duplicate paths.
	Containers               []Descriptor `json:"containersv2"`
	LastSelectedContainerDir *string      `json:"last_selected_container_dir"`
	RecentProtocols          []string     `json:"recent_protocols"`
	ArchivedProtocols        []string     `json:"archived_protocols"`
}

// onDisk is the tolerant read shape. Unknown fields are ignored.
type onDisk struct {
	Containers               []string     `json:"containers"`
	ContainersV2             []Descriptor `json:"containersv2"`
	LastSelectedContainerDir *string      `json:"last_selected_container_dir"`
	RecentProtocols          []string     `json:"recent_protocols"`
	ArchivedProtocols        []string     `json:"archived_protocols"`
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		Containers:        []Descriptor{},
		RecentProtocols:   []string{},
		ArchivedProtocols: []string{},
	}
}

// Load reads the catalog at path. A missing file yields an empty catalog.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is the launcher's own catalog file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}

		return nil, fmt.Errorf("read catalog: %w", err)
	}

	return Decode(data)
}

// Decode parses a catalog document, merging the legacy `containers` list into
// the descriptor list. Legacy paths without a descriptor get a fresh id.
func Decode(data []byte) (*Catalog, error) {
	c := New()
	if len(bytes.TrimSpace(data)) == 0 {
		return c, nil
	}

	var doc onDisk
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c.LastSelectedContainerDir = doc.LastSelectedContainerDir

	if doc.RecentProtocols != nil {
		c.RecentProtocols = doc.RecentProtocols
	}

	if doc.ArchivedProtocols != nil {
		c.ArchivedProtocols = doc.ArchivedProtocols
	}

	for _, d := range doc.ContainersV2 {
		if d.Path == "" || c.indexOfPath(d.Path) >= 0 {
			continue
		}

		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}

		c.Containers = append(c.Containers, d)
	}

	legacy := slices.Clone(doc.Containers)
	sort.Strings(legacy)

	for _, p := range slices.Compact(legacy) {
		if p == "" || c.indexOfPath(p) >= 0 {
			continue
		}

		c.Containers = append(c.Containers, Descriptor{ID: uuid.New(), Path: p})
	}

	c.sort()

	return c, nil
}

// Save writes the catalog to path atomically: the document is written to a
// temporary file in the same directory and renamed into place.
func (c *Catalog) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create catalog directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".colony-catalog-*.json")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}

	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp catalog: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp catalog: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp catalog: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace catalog: %w", err)
	}

	return nil
}

// Encode renders the catalog in its current on-disk shape.
func (c *Catalog) Encode() ([]byte, error) {
	out := c.Clone()
	out.sort()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}

	return append(data, '\n'), nil
}

// Clone returns a deep copy.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{
		Containers:        make([]Descriptor, 0, len(c.Containers)),
		RecentProtocols:   append([]string{}, c.RecentProtocols...),
		ArchivedProtocols: append([]string{}, c.ArchivedProtocols...),
	}

	if c.LastSelectedContainerDir != nil {
		dir := *c.LastSelectedContainerDir
		out.LastSelectedContainerDir = &dir
	}

	for _, d := range c.Containers {
		cp := d
		if d.Labels != nil {
			cp.Labels = make(map[string]string, len(d.Labels))
			for k, v := range d.Labels {
				cp.Labels[k] = v
			}
		}

		cp.Apps = slices.Clone(d.Apps)
		out.Containers = append(out.Containers, cp)
	}

	return out
}

// AddContainer registers path and returns its descriptor. created is false
// when a descriptor with that path already exists; its id is kept.
func (c *Catalog) AddContainer(path string) (d Descriptor, created bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Descriptor{}, false, errors.New("container path is empty")
	}

	if i := c.indexOfPath(path); i >= 0 {
		return c.Containers[i], false, nil
	}

	d = Descriptor{ID: uuid.New(), Path: path}
	c.Containers = append(c.Containers, d)
	c.sort()

	return d, true, nil
}

// RemoveContainer drops the descriptor with id and reports whether one existed.
func (c *Catalog) RemoveContainer(id uuid.UUID) bool {
	for i, d := range c.Containers {
		if d.ID == id {
			c.Containers = slices.Delete(c.Containers, i, i+1)
			return true
		}
	}

	return false
}

// RemoveContainerByPath drops the descriptor for path and reports whether one
// existed.
func (c *Catalog) RemoveContainerByPath(path string) bool {
	i := c.indexOfPath(path)
	if i < 0 {
		return false
	}

	c.Containers = slices.Delete(c.Containers, i, i+1)

	return true
}

// SetLastPickerDir records the directory last used in the container picker.
// A nil dir clears it.
func (c *Catalog) SetLastPickerDir(dir *string) {
	if dir == nil {
		c.LastSelectedContainerDir = nil
		return
	}

	v := *dir
	c.LastSelectedContainerDir = &v
}

// ByPath returns the descriptor registered for path.
func (c *Catalog) ByPath(path string) (Descriptor, bool) {
	if i := c.indexOfPath(path); i >= 0 {
		return c.Containers[i], true
	}

	return Descriptor{}, false
}

// ByID returns the descriptor with id.
func (c *Catalog) ByID(id uuid.UUID) (Descriptor, bool) {
	for _, d := range c.Containers {
		if d.ID == id {
			return d, true
		}
	}

	return Descriptor{}, false
}

// Lookup resolves ref as a descriptor id first, then as a path.
func (c *Catalog) Lookup(ref string) (Descriptor, bool) {
	if id, err := uuid.Parse(ref); err == nil {
		if d, ok := c.ByID(id); ok {
			return d, true
		}
	}

	return c.ByPath(ref)
}

// UpdateMetadata caches query results on the descriptor for path. It reports
// whether a descriptor was found. Nil arguments leave fields unchanged.
func (c *Catalog) UpdateMetadata(path string, title *string, labels map[string]string, apps []string) bool {
	i := c.indexOfPath(path)
	if i < 0 {
		return false
	}

	d := &c.Containers[i]
	if title != nil {
		d.Title = *title
	}

	if labels != nil {
		d.Labels = labels
	}

	if apps != nil {
		d.Apps = apps
	}

	return true
}

// Paths returns the registered container paths in catalog order.
func (c *Catalog) Paths() []string {
	out := make([]string, 0, len(c.Containers))
	for _, d := range c.Containers {
		out = append(out, d.Path)
	}

	return out
}

func (c *Catalog) indexOfPath(path string) int {
	for i, d := range c.Containers {
		if d.Path == path {
			return i
		}
	}

	return -1
}

func (c *Catalog) sort() {
	sort.SliceStable(c.Containers, func(a, b int) bool {
		return c.Containers[a].Path < c.Containers[b].Path
	})
}
