package prefs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
	"k8s.io/klog/v2"
)

const defaultPrefsPath = "~/.config/vapor-console/prefs.toml"

// DefaultPath returns the default preferences file path.
func DefaultPath() string {
	return defaultPrefsPath
}

// Load reads every key from the file at path. Missing or unreadable files
// yield an empty set.
func Load(path string) (map[string]string, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return map[string]string{}, nil
	}
	return readFile(resolved), nil
}

// Save writes values to path, creating directories as needed.
func Save(path string, values map[string]string) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	return writeFile(resolved, values)
}

func readFile(path string) map[string]string {
	values := map[string]string{}

	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			klog.ErrorS(err, "Open prefs", "path", path)
		}
		return values // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return values // Graceful degradation
	}

	var raw map[string]any
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		klog.ErrorS(err, "Parse prefs, ignoring file", "path", path)
		return values // Graceful degradation
	}
	for k, v := range raw {
		switch x := v.(type) {
		case string:
			values[k] = x
		default:
			values[k] = fmt.Sprint(x)
		}
	}
	return values
}

func writeFile(path string, values map[string]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}

	bytes, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal prefs: %w", err)
	}

	if err := os.WriteFile(path, bytes, 0o600); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	return nil
}

type keySub struct {
	id uint64
	fn func(value string, ok bool)
}

// Store is a set of independently persisted keys. Every Set or Delete is
// written through to the file immediately. A Store without a path lives in
// memory only.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]string
	subs   map[string][]keySub
	nextID uint64
}

// Open loads the store at path, or the default path when empty.
func Open(path string) (*Store, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	return &Store{path: resolved, values: readFile(resolved)}, nil
}

// Memory returns a Store that is never written to disk.
func Memory() *Store {
	return &Store{values: map[string]string{}}
}

// Path returns the backing file, empty for memory stores.
func (s *Store) Path() string {
	return s.path
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores value under key and persists the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	if cur, ok := s.values[key]; ok && cur == value {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = value
	err := s.flushLocked()
	subs := s.subsLocked(key)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(value, true)
	}
	return err
}

// Delete removes key and persists the file.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	err := s.flushLocked()
	subs := s.subsLocked(key)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn("", false)
	}
	return err
}

// Subscribe calls fn whenever key changes, including changes loaded from
// the file by Watch.
func (s *Store) Subscribe(key string, fn func(value string, ok bool)) func() {
	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[string][]keySub)
	}
	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], keySub{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			subs := s.subs[key]
			for i, sub := range subs {
				if sub.id == id {
					s.subs[key] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) subsLocked(key string) []keySub {
	return append([]keySub(nil), s.subs[key]...)
}

func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}
	return writeFile(s.path, s.values)
}

// reload replaces the values with the file contents and notifies
// subscribers of every key that changed.
func (s *Store) reload() {
	if s.path == "" {
		return
	}
	fresh := readFile(s.path)

	type change struct {
		subs  []keySub
		value string
		ok    bool
	}
	var changes []change

	s.mu.Lock()
	for k, v := range fresh {
		if cur, ok := s.values[k]; !ok || cur != v {
			changes = append(changes, change{subs: s.subsLocked(k), value: v, ok: true})
		}
	}
	for k := range s.values {
		if _, ok := fresh[k]; !ok {
			changes = append(changes, change{subs: s.subsLocked(k)})
		}
	}
	s.values = fresh
	s.mu.Unlock()

	for _, c := range changes {
		for _, sub := range c.subs {
			sub.fn(c.value, c.ok)
		}
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultPrefsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
