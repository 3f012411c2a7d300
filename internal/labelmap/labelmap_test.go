package labelmap

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestParse(t *testing.T) {
	data := []byte(`{
		// Comments are allowed.
		"German": "DE",
		/* So are block comments. */
		"English (Dvorak)": "DV",
	}`)

	m, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"German": "DE", "English (Dvorak)": "DV"}
	if !reflect.DeepEqual(m, want) {
		t.Errorf("got %v, want %v", m, want)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "NotObject", data: `["German"]`},
		{name: "NotString", data: `{"German": 1}`},
		{name: "EmptyLabel", data: `{"German": ""}`},
		{name: "Garbage", data: `{"German": `},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Parse([]byte(test.data)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "map.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Errorf("got %v", m)
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan map[string]string, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(m map[string]string) { updates <- m }, zaptest.NewLogger(t).Sugar())
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to start.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte(`{"German": "XX",}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-updates:
		if m["German"] != "XX" {
			t.Errorf("got %v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no update")
	}

	if err := os.WriteFile(path, []byte(`{"German": `), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-updates:
		t.Fatalf("unexpected update for a broken file: %v", m)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatchMissingDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "config", "wlkbd")
	path := filepath.Join(dir, "map.json")

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan map[string]string, 8)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(m map[string]string) { updates <- m }, zaptest.NewLogger(t).Sugar())
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(50 * time.Millisecond)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"German": "XX"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case m := <-updates:
			if m["German"] == "XX" {
				return
			}
		case err := <-done:
			done <- err
			t.Fatalf("watch stopped: %v", err)
		case <-timeout:
			t.Fatal("no update after the directory was created")
		}
	}
}

func TestNearestDir(t *testing.T) {
	root := t.TempDir()
	if got := nearestDir(filepath.Join(root, "a", "b")); got != root {
		t.Errorf("got %q, want %q", got, root)
	}
	if got := nearestDir(root); got != root {
		t.Errorf("got %q, want %q", got, root)
	}
}
