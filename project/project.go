// Package project resolves and loads script projects (spec.md §6 "Project
// layout (script)"): a directory or zip archive containing manifest.lua
// and main.lua. Archived projects are extracted to a temporary directory
// owned by the caller and removed on context shutdown.
package project

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/lixenwraith/tasrun/errs"
)

// Manifest is the decoded manifest.lua table (spec.md §6: "defines a
// table with at least name, author, target_level, entry_script,
// update_rate").
type Manifest struct {
	Name         string
	Author       string
	TargetLevel  string
	EntryScript  string
	UpdateRate   int
	ExecutionTrigger string // "global", "level", or "" (custom/unspecified)
}

// Resolved is a project ready to load: its manifest plus the absolute
// path to the entry script, and an optional cleanup for an extracted
// archive's temporary directory.
type Resolved struct {
	Manifest    Manifest
	EntryPath   string
	ProjectDir  string
	cleanupFn   func() error
}

// Cleanup removes the project's temporary directory, if one was created
// for an archived project. Safe to call on a directory-backed project
// (no-op).
func (r *Resolved) Cleanup() error {
	if r.cleanupFn == nil {
		return nil
	}
	return r.cleanupFn()
}

// Resolve accepts either a directory path or a .zip archive path and
// returns a Resolved project. Archives are extracted to a fresh temp
// directory under os.TempDir(); the caller must call Cleanup() on
// context shutdown (spec.md §6).
func Resolve(path string) (*Resolved, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "Resolve", err)
	}

	var projectDir string
	var cleanup func() error
	if info.IsDir() {
		projectDir = path
	} else if strings.EqualFold(filepath.Ext(path), ".zip") {
		dir, err := extractZip(path)
		if err != nil {
			return nil, err
		}
		projectDir = dir
		cleanup = func() error { return os.RemoveAll(dir) }
	} else {
		return nil, errs.New(errs.InvalidArgument, "Resolve", "project path must be a directory or a .zip archive")
	}

	manifestPath := filepath.Join(projectDir, "manifest.lua")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if cleanup != nil {
			_ = cleanup()
		}
		return nil, errs.Wrap(errs.ScriptLoadFailure, "Resolve", err)
	}
	m, err := LoadManifest(data)
	if err != nil {
		if cleanup != nil {
			_ = cleanup()
		}
		return nil, err
	}

	entryName := m.EntryScript
	if entryName == "" {
		entryName = "main.lua"
	}
	entryPath := filepath.Join(projectDir, entryName)
	if _, err := os.Stat(entryPath); err != nil {
		if cleanup != nil {
			_ = cleanup()
		}
		return nil, errs.Wrap(errs.ScriptLoadFailure, "Resolve", err)
	}

	return &Resolved{Manifest: m, EntryPath: entryPath, ProjectDir: projectDir, cleanupFn: cleanup}, nil
}

// LoadManifest executes manifest.lua's contents in a throwaway Lua state
// and reads the global table `manifest` it must define.
func LoadManifest(data []byte) (Manifest, error) {
	L := lua.NewState()
	defer L.Close()

	if err := L.DoString(string(data)); err != nil {
		return Manifest{}, errs.Wrap(errs.ScriptLoadFailure, "LoadManifest", err)
	}

	tbl, ok := L.GetGlobal("manifest").(*lua.LTable)
	if !ok {
		return Manifest{}, errs.New(errs.ScriptLoadFailure, "LoadManifest", "manifest.lua must define a global 'manifest' table")
	}

	m := Manifest{
		Name:             luaString(tbl, "name"),
		Author:           luaString(tbl, "author"),
		TargetLevel:      luaString(tbl, "target_level"),
		EntryScript:      luaString(tbl, "entry_script"),
		ExecutionTrigger: luaString(tbl, "execution_trigger"),
		UpdateRate:       luaInt(tbl, "update_rate", 60),
	}
	if m.Name == "" {
		return Manifest{}, errs.New(errs.ScriptLoadFailure, "LoadManifest", "manifest.name is required")
	}
	return m, nil
}

func luaString(t *lua.LTable, key string) string {
	v := t.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

func luaInt(t *lua.LTable, key string, def int) int {
	v := t.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		return int(n)
	}
	return def
}

func extractZip(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", errs.Wrap(errs.ScriptLoadFailure, "extractZip", err)
	}
	defer r.Close()

	dir, err := os.MkdirTemp("", "tasrun-project-*")
	if err != nil {
		return "", errs.Wrap(errs.ScriptLoadFailure, "extractZip", err)
	}

	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			os.RemoveAll(dir)
			return "", errs.New(errs.ScriptLoadFailure, "extractZip", "archive entry escapes the extraction directory")
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				os.RemoveAll(dir)
				return "", errs.Wrap(errs.ScriptLoadFailure, "extractZip", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			os.RemoveAll(dir)
			return "", errs.Wrap(errs.ScriptLoadFailure, "extractZip", err)
		}
		if err := copyZipEntry(f, target); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func copyZipEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return errs.Wrap(errs.ScriptLoadFailure, "copyZipEntry", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return errs.Wrap(errs.ScriptLoadFailure, "copyZipEntry", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errs.Wrap(errs.ScriptLoadFailure, "copyZipEntry", err)
	}
	return nil
}
