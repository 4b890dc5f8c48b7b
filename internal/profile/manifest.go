package profile

import (
	"fmt"
	"time"
)

// Manifest lists every published version.
type Manifest struct {
	Latest   Latest  `json:"latest"`
	Versions []Entry `json:"versions"`
}

// Latest points at the newest release and snapshot ids.
type Latest struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

// Entry is one version in the manifest.
type Entry struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	Time        string `json:"time"`
	ReleaseTime string `json:"releaseTime"`
	SHA1        string `json:"sha1,omitempty"`
}

// Modified parses the entry's last modification time.
func (e Entry) Modified() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, e.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("version %s: parsing time %q: %w", e.ID, e.Time, err)
	}
	return t, nil
}

// Lookup finds the entry for a version id.
func (m *Manifest) Lookup(id string) (Entry, bool) {
	for _, e := range m.Versions {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Resolve is Lookup that also understands "latest" and "snapshot".
func (m *Manifest) Resolve(name string) (Entry, error) {
	id := name
	switch name {
	case "latest", "release":
		id = m.Latest.Release
	case "snapshot":
		id = m.Latest.Snapshot
	}
	e, ok := m.Lookup(id)
	if !ok {
		return Entry{}, fmt.Errorf("version %q is not in the manifest", name)
	}
	return e, nil
}
