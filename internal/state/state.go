// Package state persists the small durable record the orchestrator
// consults across invocations: the currently installed tag and the
// HTTP conditional-request validators from the last successful index
// query.
//
// Grounded on the atomic write-temp/fsync/rename pattern used
// throughout the teacher's directory-swap update flow
// (internal/apps/install.go), applied here to a single JSON file
// instead of a directory tree.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/distronomicon/distronomicon/internal/errkind"
)

// State is the durable per-app record described in spec §3. Unknown
// fields encountered on load are preserved in Extra and re-emitted on
// save, so a newer writer's fields survive a round trip through an
// older reader.
type State struct {
	LatestTag    string     `json:"latest_tag,omitempty"`
	ETag         string     `json:"etag,omitempty"`
	LastModified string     `json:"last_modified,omitempty"`
	InstalledAt  *time.Time `json:"installed_at,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Load reads the state file at path. A missing file yields a zero
// State and no error, matching "missing file returns an empty
// record."
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.State, "read state file", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errkind.Wrap(errkind.State, "parse state file", err)
	}

	s := &State{Extra: map[string]json.RawMessage{}}
	for k, v := range raw {
		switch k {
		case "latest_tag":
			_ = json.Unmarshal(v, &s.LatestTag)
		case "etag":
			_ = json.Unmarshal(v, &s.ETag)
		case "last_modified":
			_ = json.Unmarshal(v, &s.LastModified)
		case "installed_at":
			var t time.Time
			if err := json.Unmarshal(v, &t); err == nil {
				s.InstalledAt = &t
			}
		default:
			s.Extra[k] = v
		}
	}
	return s, nil
}

// Save writes state to path atomically: a sibling temp file is
// written, fsynced, renamed over the target, and the parent directory
// is fsynced. Unknown fields captured in Extra are re-emitted
// unchanged.
func Save(path string, s *State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errkind.Wrap(errkind.State, "create state directory", err)
	}

	merged := map[string]json.RawMessage{}
	for k, v := range s.Extra {
		merged[k] = v
	}
	if s.LatestTag != "" {
		merged["latest_tag"] = mustMarshal(s.LatestTag)
	} else {
		delete(merged, "latest_tag")
	}
	if s.ETag != "" {
		merged["etag"] = mustMarshal(s.ETag)
	} else {
		delete(merged, "etag")
	}
	if s.LastModified != "" {
		merged["last_modified"] = mustMarshal(s.LastModified)
	} else {
		delete(merged, "last_modified")
	}
	if s.InstalledAt != nil {
		merged["installed_at"] = mustMarshal(s.InstalledAt.UTC().Format(time.RFC3339))
	} else {
		delete(merged, "installed_at")
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errkind.Wrap(errkind.State, "marshal state", err)
	}

	tmpPath := filepath.Join(dir, ".state."+uuid.NewString()+".tmp")
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return errkind.Wrap(errkind.State, "create temp state file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errkind.Wrap(errkind.State, "write temp state file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errkind.Wrap(errkind.State, "fsync temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errkind.Wrap(errkind.State, "close temp state file", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errkind.Wrap(errkind.State, "rename state file into place", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
