package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const universeYAML = `
name: viscosity
version: "1.0"
log_dir: $WORLD/logs
worlds:
  - id: 0
    job_dir: $WORLD/jobs
    world_dir: $LOCAL/world0
    output_dir: $WORLD/out
    base_files: $LOCAL/base
    envs:
      - id: 0
        name: env0
        mods:
          - func: set_viscosity
            params:
              visc: 0.01
  - id: 1
    world_dir: /data/world1
    job_dir: $WORLD/jobs
    output_dir: $WORLD/out
    base_files: $LOCAL/base
    envs: []
trailer: $WORLD/after
`

func TestParseUniverse_Substitution(t *testing.T) {
	u, err := ParseUniverse([]byte(universeYAML), "/home/me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if u.Name != "viscosity" || u.Version != "1.0" {
		t.Errorf("unexpected header: %q %q", u.Name, u.Version)
	}
	if len(u.Worlds) != 2 {
		t.Fatalf("expected 2 worlds, got %d", len(u.Worlds))
	}

	w0 := u.Worlds[0]
	if w0.WorldDir != "/home/me/world0" {
		t.Errorf("world_dir = %q", w0.WorldDir)
	}
	// job_dir precedes world_dir in the mapping but still sees the world's own binding.
	if w0.JobDir != "/home/me/world0/jobs" {
		t.Errorf("job_dir = %q", w0.JobDir)
	}
	if w0.OutputDir != "/home/me/world0/out" {
		t.Errorf("output_dir = %q", w0.OutputDir)
	}
	if w0.BaseFiles != "/home/me/base" {
		t.Errorf("base_files = %q", w0.BaseFiles)
	}
	if u.Worlds[1].JobDir != "/data/world1/jobs" {
		t.Errorf("world 1 job_dir = %q", u.Worlds[1].JobDir)
	}
}

func TestParseUniverse_BindingOrder(t *testing.T) {
	// Scalars outside any world use whatever binding the traversal has reached:
	// the initial one before the world list, the last world's dir after it.
	data := []byte(`
before: $WORLD/x
worlds:
  - {id: 0, world_dir: /w0, job_dir: j, output_dir: o, base_files: b, envs: []}
  - {id: 1, world_dir: /w1, job_dir: j, output_dir: o, base_files: b, envs: []}
after: $WORLD/y
`)
	var raw struct {
		Before string `yaml:"before"`
		After  string `yaml:"after"`
	}
	u, err := ParseUniverse(data, "/cwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(u.Worlds) != 2 {
		t.Fatalf("expected 2 worlds, got %d", len(u.Worlds))
	}

	root, err := substitutedRoot(data, "/cwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := root.Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.Before != "/cwd/x" {
		t.Errorf("before = %q, want /cwd/x", raw.Before)
	}
	if raw.After != "/w1/y" {
		t.Errorf("after = %q, want /w1/y", raw.After)
	}
}

func TestParseUniverse_MissingWorlds(t *testing.T) {
	_, err := ParseUniverse([]byte("name: x\nversion: '1'\n"), "/cwd")
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestParseUniverse_DuplicateWorldID(t *testing.T) {
	data := []byte(`
worlds:
  - {id: 3, world_dir: /a, job_dir: j, output_dir: o, base_files: b, envs: []}
  - {id: 3, world_dir: /b, job_dir: j, output_dir: o, base_files: b, envs: []}
`)
	var ce *ConfigError
	if _, err := ParseUniverse(data, "/cwd"); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestLoadUniverse_Errors(t *testing.T) {
	var ce *ConfigError

	if _, err := LoadUniverse(filepath.Join(t.TempDir(), "missing.yml"), LoadOptions{}); !errors.As(err, &ce) {
		t.Errorf("expected ConfigError for missing file, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(bad, []byte("worlds: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadUniverse(bad, LoadOptions{Local: "/cwd"})
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError for bad yaml, got %v", err)
	}
	if ce.Path != bad {
		t.Errorf("error path = %q, want %q", ce.Path, bad)
	}
}

func TestWorldValidate(t *testing.T) {
	data := []byte(`
worlds:
  - id: 0
    world_dir: /w
    job_dir: /w/jobs
    envs:
      - {id: 0, name: a}
      - {id: 0}
`)
	u, err := ParseUniverse(data, "/cwd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, err := u.World(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = w.Validate()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// output_dir, base_files, env #1 name, duplicate env id
	if len(ve.Problems) != 4 {
		t.Errorf("expected 4 problems, got %d: %v", len(ve.Problems), ve.Problems)
	}

	if _, err := u.World(9); err == nil {
		t.Error("expected lookup error for unknown world")
	}
}

func TestWorldEnvLookup(t *testing.T) {
	u, err := ParseUniverse([]byte(universeYAML), "/home/me")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w := &u.Worlds[0]
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	env, err := w.Env(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := w.EnvDir(env); got != "/home/me/world0/env0" {
		t.Errorf("EnvDir = %q", got)
	}
	if len(env.Mods) != 1 || env.Mods[0].Func != "set_viscosity" {
		t.Fatalf("unexpected mods: %+v", env.Mods)
	}

	var args struct {
		Visc float64 `yaml:"visc"`
	}
	if err := env.Mods[0].Params.Decode(&args); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if args.Visc != 0.01 {
		t.Errorf("visc = %v", args.Visc)
	}

	var le *LookupError
	if _, err := w.Env(5); !errors.As(err, &le) {
		t.Errorf("expected LookupError, got %v", err)
	}
}
