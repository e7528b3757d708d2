package fs

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/edgeworker/internal/testutil/testlog"
	"github.com/danmuck/edgeworker/internal/worker"
)

func TestFilesWriteReadListDelete(t *testing.T) {
	testlog.Start(t)
	f := NewFiles(t.TempDir())

	if list, err := f.List(""); err != nil || len(list) != 0 {
		t.Fatalf("empty list got=%v err=%v", list, err)
	}
	if err := f.Write("a/one.txt", "1"); err != nil {
		t.Fatalf("write one: %v", err)
	}
	if err := f.Write("b.txt", "2"); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if got, err := f.Read("a/one.txt"); err != nil || got != "1" {
		t.Fatalf("read got=%q err=%v", got, err)
	}
	if got, err := f.List(""); err != nil || !reflect.DeepEqual(got, []string{"a/one.txt", "b.txt"}) {
		t.Fatalf("list got=%v err=%v", got, err)
	}
	if got, err := f.List("a/"); err != nil || !reflect.DeepEqual(got, []string{"a/one.txt"}) {
		t.Fatalf("prefix list got=%v err=%v", got, err)
	}
	if err := f.Delete("b.txt"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := f.Delete("b.txt"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if _, err := f.Read("b.txt"); err == nil {
		t.Fatalf("expected read error after delete")
	}
}

func TestFilesRejectsEscapes(t *testing.T) {
	testlog.Start(t)
	f := NewFiles(t.TempDir())
	if err := f.Write("../out.txt", "x"); !errors.Is(err, ErrEscapesRoot) {
		t.Fatalf("expected ErrEscapesRoot got=%v", err)
	}
	if _, err := f.Read("/etc/passwd"); !errors.Is(err, ErrAbsolutePath) {
		t.Fatalf("expected ErrAbsolutePath got=%v", err)
	}
	if err := f.Delete(" "); !errors.Is(err, ErrMissingPath) {
		t.Fatalf("expected ErrMissingPath got=%v", err)
	}
}

func TestNewUsesInjectedRoot(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	services := worker.NewServices()
	worker.Provide(services, Root(dir))
	inst, err := New(services)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if files := inst.(*Files); files.root != dir {
		t.Fatalf("unexpected root=%q", files.root)
	}
	inst, _ = New(worker.NewServices())
	if files := inst.(*Files); files.root != string(DefaultRoot) {
		t.Fatalf("unexpected default root=%q", files.root)
	}
}
