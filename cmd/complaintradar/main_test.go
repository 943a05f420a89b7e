package main

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posts.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadInputFileArray(t *testing.T) {
	posts, err := readInputFile(writeFile(t, `[{"title": "MRT down"}, {"title": "Bus late", "votes": 4}]`))
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 || posts[1].Title != "Bus late" || *posts[1].Votes != 4 {
		t.Errorf("unexpected posts %+v", posts)
	}
}

func TestReadInputFileWrapped(t *testing.T) {
	posts, err := readInputFile(writeFile(t, `{"posts": [{"title": "MRT down"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].Title != "MRT down" {
		t.Errorf("unexpected posts %+v", posts)
	}
}

func TestReadInputFileInvalid(t *testing.T) {
	if _, err := readInputFile(writeFile(t, `not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestNewLogger(t *testing.T) {
	log, err := newLogger("warn", false)
	if err != nil {
		t.Fatal(err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}

	log, err = newLogger("warn", true)
	if err != nil {
		t.Fatal(err)
	}
	if !log.Core().Enabled(zapcore.DebugLevel) {
		t.Error("verbose should enable debug")
	}

	if _, err := newLogger("loud", false); err == nil {
		t.Error("expected error for unknown level")
	}
}
