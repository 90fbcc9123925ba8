package prefs

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	s, err := Open("")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if got := len(s.Keys()); got != 0 {
		t.Fatalf("Keys = %d, want 0", got)
	}
	want := filepath.Join(home, ".config", "vapor-console", "prefs.toml")
	if s.Path() != want {
		t.Fatalf("Path = %q, want %q", s.Path(), want)
	}
}

func TestOpen_ReadsExistingFile(t *testing.T) {
	tmp := t.TempDir()
	prefsFile := filepath.Join(tmp, "prefs.toml")
	content := "\"vapor:ui:theme\" = \"light\"\njwt_token = \"abc\"\ncount = 3\n"
	if err := os.WriteFile(prefsFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(prefsFile)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if v, _ := s.Get("vapor:ui:theme"); v != "light" {
		t.Fatalf("theme = %q, want light", v)
	}
	if v, _ := s.Get("jwt_token"); v != "abc" {
		t.Fatalf("jwt_token = %q, want abc", v)
	}
	if v, _ := s.Get("count"); v != "3" {
		t.Fatalf("count = %q, want 3", v)
	}
}

func TestLoad_InvalidTOMLFallsBackToEmpty(t *testing.T) {
	tmp := t.TempDir()
	prefsFile := filepath.Join(tmp, "prefs.toml")
	if err := os.WriteFile(prefsFile, []byte("not valid toml {{{\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	values, err := Load(prefsFile)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("values = %v, want empty", values)
	}
}

func TestSave_CreatesFileAndDirs(t *testing.T) {
	tmp := t.TempDir()
	prefsFile := filepath.Join(tmp, "subdir", "prefs.toml")

	if err := Save(prefsFile, map[string]string{"vapor.virtualization.vms.items": "[]"}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := Load(prefsFile)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded["vapor.virtualization.vms.items"] != "[]" {
		t.Fatalf("loaded = %v, want dotted key preserved", loaded)
	}
}

func TestStore_SetPersistsEachKey(t *testing.T) {
	prefsFile := filepath.Join(t.TempDir(), "prefs.toml")
	s, err := Open(prefsFile)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	var notified []string
	unsub := s.Subscribe("vapor:ui:language", func(v string, ok bool) {
		notified = append(notified, v)
	})

	if err := s.Set("vapor:ui:language", "id"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := s.Set("vapor:ui:language", "id"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := s.Set("vapor:ui:theme", "light"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	unsub()
	if err := s.Delete("vapor:ui:language"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if len(notified) != 1 || notified[0] != "id" {
		t.Fatalf("notified = %v, want [id]", notified)
	}

	reopened, err := Open(prefsFile)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, ok := reopened.Get("vapor:ui:language"); ok {
		t.Fatal("deleted key survived reopen")
	}
	if v, _ := reopened.Get("vapor:ui:theme"); v != "light" {
		t.Fatalf("theme = %q, want light", v)
	}
}

func TestPersistentAtoms(t *testing.T) {
	s := Memory()
	_ = s.Set("vapor:ui:compactMode", "true")
	_ = s.Set("vapor:ui:fontSize", "not-a-bool")

	compact := Bool(s, "vapor:ui:compactMode", false)
	if !compact.Get() {
		t.Fatal("compactMode = false, want stored true")
	}
	broken := Bool(s, "vapor:ui:fontSize", true)
	if !broken.Get() {
		t.Fatal("undecodable value should fall back to default")
	}

	theme := String(s, "vapor:ui:theme", "dark")
	theme.Set("light")
	if v, _ := s.Get("vapor:ui:theme"); v != "light" {
		t.Fatalf("stored theme = %q, want light", v)
	}

	_ = s.Set("vapor:ui:theme", "auto")
	if theme.Get() != "auto" {
		t.Fatalf("theme atom = %q, want auto after external write", theme.Get())
	}
	_ = s.Delete("vapor:ui:theme")
	if theme.Get() != "dark" {
		t.Fatalf("theme atom = %q, want default after delete", theme.Get())
	}
}

func TestPersistentAtom_ConcurrentWritesKeepStoreInSync(t *testing.T) {
	s := Memory()
	size := String(s, "vapor:ui:fontSize", "medium")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				size.Set(strconv.Itoa(i*100 + j))
			}
		}(i)
	}
	wg.Wait()

	if v, _ := s.Get("vapor:ui:fontSize"); v != size.Get() {
		t.Fatalf("stored = %q, atom = %q; want equal", v, size.Get())
	}
}

func TestWatch_ReloadsExternalChanges(t *testing.T) {
	prefsFile := filepath.Join(t.TempDir(), "prefs.toml")
	s, err := Open(prefsFile)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Set("vapor:ui:theme", "dark"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	changed := make(chan string, 4)
	s.Subscribe("vapor:ui:theme", func(v string, ok bool) { changed <- v })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher, which may still be starting, sees it.
		if err := Save(prefsFile, map[string]string{"vapor:ui:theme": "light"}); err != nil {
			t.Fatalf("Save returned error: %v", err)
		}
		select {
		case v := <-changed:
			if v != "light" {
				t.Fatalf("reloaded theme = %q, want light", v)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("watcher did not reload the file")
		}
	}
}
