package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"visforge/forge"
)

const saveExt = ".json"

// Store keeps each save slot as a JSON file under a root directory. Writes go
// through a temp file and a rename so a crash never leaves a torn save.
type Store struct {
	root    string
	primary string
}

// New returns a store rooted at root, creating it if needed. primary names
// the primary currency legacy saves are migrated into.
func New(root, primary string) (*Store, error) {
	if root == "" {
		root = "./saves"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root, primary: primary}, nil
}

func (s *Store) Root() string { return s.root }

// sanitizeSlot keeps slot names inside the root.
func sanitizeSlot(slot string) (string, error) {
	if strings.TrimSpace(slot) == "" {
		return "", fmt.Errorf("empty slot")
	}
	if strings.Contains(slot, "..") {
		return "", fmt.Errorf("invalid slot contains '..'")
	}
	if strings.ContainsAny(slot, `/\`) {
		return "", fmt.Errorf("invalid slot contains a path separator")
	}
	return slot, nil
}

func (s *Store) pathFor(slot string) (string, error) {
	clean, err := sanitizeSlot(slot)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, clean+saveExt), nil
}

func (s *Store) Load(ctx context.Context, slot string) (*forge.SaveFile, error) {
	path, err := s.pathFor(slot)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, forge.ErrSaveNotFound
	}
	if err != nil {
		return nil, err
	}
	return forge.DecodeSave(content, s.primary)
}

func (s *Store) Save(ctx context.Context, slot string, save *forge.SaveFile) error {
	path, err := s.pathFor(slot)
	if err != nil {
		return err
	}
	content, err := forge.EncodeSave(save)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// atomically move into place
	return os.Rename(tmp.Name(), path)
}

// Delete removes a slot and reports whether it existed.
func (s *Store) Delete(ctx context.Context, slot string) (bool, error) {
	path, err := s.pathFor(slot)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Slots lists the stored slot names in order.
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var slots []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, saveExt) {
			continue
		}
		slots = append(slots, strings.TrimSuffix(name, saveExt))
	}
	sort.Strings(slots)
	return slots, nil
}
