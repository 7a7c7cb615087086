// Package persist implements file-based durability for the device tree
// (§6.3): JSON snapshots of the device and group arenas, written atomically
// and loaded back via tree.Tree.Restore so that restored handles keep their
// original (index, generation) pair.
package persist

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"hubd/tree"
)

const (
	devicesFilename = "devices.json"
	groupsFilename  = "groups.json"
)

// Store persists tree snapshots under a directory, one JSON file per arena.
// It implements tree.Persister.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. dir must already exist.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// fileExists reports whether path names an existing, readable file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// writeAtomic writes data to the named file by first writing a sibling
// temp file, then renaming it into place, so a crash mid-write never
// leaves a half-written snapshot for the next Load to trip over.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := ioutil.TempFile(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "renaming %s -> %s", tmpName, path)
	}
	return nil
}

// PersistDevices implements tree.Persister. The mutation API calls this
// after a device-arena-affecting mutation has already been applied in
// memory (§4.3's "persist if durable" step); the tree package returns a
// failure here to its caller as is (not as treeerr.ErrPersistFailed), and
// does not retry it.
func (s *Store) PersistDevices(snapshot tree.DeviceSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshaling device snapshot")
	}
	return writeAtomic(filepath.Join(s.dir, devicesFilename), data)
}

// PersistGroups implements tree.Persister.
func (s *Store) PersistGroups(snapshot tree.GroupSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshaling group snapshot")
	}
	return writeAtomic(filepath.Join(s.dir, groupsFilename), data)
}

// Load reads back the last persisted snapshots, if any exist. It returns
// ok=false (no error) when this is a first run with nothing on disk yet.
func (s *Store) Load() (devs tree.DeviceSnapshot, groups tree.GroupSnapshot, ok bool, err error) {
	devPath := filepath.Join(s.dir, devicesFilename)
	groupPath := filepath.Join(s.dir, groupsFilename)

	if !fileExists(devPath) || !fileExists(groupPath) {
		return devs, groups, false, nil
	}

	devBytes, err := ioutil.ReadFile(devPath)
	if err != nil {
		return devs, groups, false, errors.Wrapf(err, "reading %s", devPath)
	}
	if err := json.Unmarshal(devBytes, &devs); err != nil {
		return devs, groups, false, errors.Wrapf(err, "parsing %s", devPath)
	}

	groupBytes, err := ioutil.ReadFile(groupPath)
	if err != nil {
		return devs, groups, false, errors.Wrapf(err, "reading %s", groupPath)
	}
	if err := json.Unmarshal(groupBytes, &groups); err != nil {
		return devs, groups, false, errors.Wrapf(err, "parsing %s", groupPath)
	}

	return devs, groups, true, nil
}

// Restore loads the persisted snapshots (if any) and applies them to t via
// insert_at, surfacing an arena corruption error as-is so the caller can
// refuse to serve rather than run on a tree with silently dropped handles.
func Restore(t *tree.Tree, s *Store) error {
	devs, groups, ok, err := s.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return t.Restore(devs, groups)
}
