package post

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/AaronLay10/orle/internal/config"
)

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{}) {}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustParams(v map[string]interface{}) config.Params {
	return config.MustParams(v)
}

const forcesDat = `# Forces
# CofR                : (0 0 0)
# Time                forces(pressure viscous porous) moment(pressure viscous porous)
0.5 ((1.0 2.0 3.0) (0.1 0.2 0.3))
1 ((4 5 6) (0.4 0.5 0.6))
bogus line
`

func TestGetForces(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "postProcessing", "forces", "0")
	writeFile(t, filepath.Join(out, "force_0.dat"), "0 ((9 9 9) (9 9 9))\n")
	writeFile(t, filepath.Join(out, "force.dat"), forcesDat)
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(out, "force_0.dat"), older, older); err != nil {
		t.Fatal(err)
	}

	s, err := GetForces(nopLogger{}, mustParams(map[string]interface{}{"function_name": "forces", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]float64{0.5, 1}, s.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	want := []interface{}{
		[]interface{}{[]interface{}{1.0, 2.0, 3.0}, []interface{}{0.1, 0.2, 0.3}},
		[]interface{}{[]interface{}{4.0, 5.0, 6.0}, []interface{}{0.4, 0.5, 0.6}},
	}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestGetForcesIgnoresCoefficientFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "postProcessing", "forces", "0")
	writeFile(t, filepath.Join(out, "forces.dat"), "0.5 ((1 2 3) (4 5 6))\n")
	writeFile(t, filepath.Join(out, "forceCoeffs.dat"), "# Time\tCd\tCl\n0.5\t1.2\t0.01\n")
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(out, "forces.dat"), older, older); err != nil {
		t.Fatal(err)
	}

	s, err := GetForces(nopLogger{}, mustParams(map[string]interface{}{"function_name": "forces", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []interface{}{[]interface{}{[]interface{}{1.0, 2.0, 3.0}, []interface{}{4.0, 5.0, 6.0}}}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestGetForcesPicksNewestRestartFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "postProcessing", "forces", "0")
	writeFile(t, filepath.Join(out, "force.dat"), "0.1 ((1 1 1))\n")
	writeFile(t, filepath.Join(out, "force_0.5.dat"), "0.6 ((2 2 2))\n")
	older := time.Now().Add(-time.Hour)
	if err := os.Chtimes(filepath.Join(out, "force.dat"), older, older); err != nil {
		t.Fatal(err)
	}

	s, err := GetForces(nopLogger{}, mustParams(map[string]interface{}{"function_name": "forces", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{0.6}, s.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
}

func TestGetForcesBoundaryFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "postProcessing", "forceCoeffs_cylinder", "0.5", "forces.dat"), "0.5 ((1 2 3))\n")

	s, err := GetForces(nopLogger{}, mustParams(map[string]interface{}{"boundary": "cylinder", "time_step": 0.5}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Times) != 1 {
		t.Errorf("expected one record, got %d", len(s.Times))
	}
}

func TestGetForcesErrors(t *testing.T) {
	dir := t.TempDir()
	p := mustParams(map[string]interface{}{"function_name": "forces", "time_step": 0})

	var me *MissingOutputError
	if _, err := GetForces(nopLogger{}, p, dir); !errors.As(err, &me) {
		t.Errorf("expected MissingOutputError for missing dir, got %v", err)
	}

	out := filepath.Join(dir, "postProcessing", "forces", "0")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := GetForces(nopLogger{}, p, dir); !errors.As(err, &me) {
		t.Errorf("expected MissingOutputError for missing file, got %v", err)
	}

	writeFile(t, filepath.Join(out, "force.dat"), "0.1 ((1 2 3) (4 5)\n")
	var pe *ParseError
	if _, err := GetForces(nopLogger{}, p, dir); !errors.As(err, &pe) || pe.Line != 1 {
		t.Errorf("expected ParseError on line 1, got %v", err)
	}
}

const scalarProbes = `# Probe 0 (0.1 0 0)
# Probe 1 (0.2 0 0)
#       Probe             0             1
#        Time

0.01          101325.1      101300
0.02          101326        101301.5
`

const vectorProbes = `# Probe 0 (0.1 0 0)
#        Time
0.01 (1 0 0) (2 0 0)
0.02 (1.5 0.1 0) (2.5 0.2 0)
`

func TestGetProbes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "postProcessing", "probes", "0")
	writeFile(t, filepath.Join(out, "p"), scalarProbes)
	writeFile(t, filepath.Join(out, "U"), vectorProbes)

	s, err := GetProbes(nopLogger{}, mustParams(map[string]interface{}{"function_name": "probes", "field": "p", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]float64{0.01, 0.02}, s.Times); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interface{}{[]interface{}{101325.1, 101300.0}, []interface{}{101326.0, 101301.5}}, s.Values); diff != "" {
		t.Errorf("scalar values mismatch (-want +got):\n%s", diff)
	}

	s, err = GetProbes(nopLogger{}, mustParams(map[string]interface{}{"function_name": "probes", "field": "U", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []interface{}{
		[]interface{}{[]interface{}{1.0, 0.0, 0.0}, []interface{}{2.0, 0.0, 0.0}},
		[]interface{}{[]interface{}{1.5, 0.1, 0.0}, []interface{}{2.5, 0.2, 0.0}},
	}
	if diff := cmp.Diff(want, s.Values); diff != "" {
		t.Errorf("vector values mismatch (-want +got):\n%s", diff)
	}

	var me *MissingOutputError
	if _, err := GetProbes(nopLogger{}, mustParams(map[string]interface{}{"function_name": "probes", "field": "k", "time_step": 0}), dir); !errors.As(err, &me) {
		t.Errorf("expected MissingOutputError, got %v", err)
	}
}

func TestGetCoeff(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "postProcessing", "forceCoeffs", "0")
	writeFile(t, filepath.Join(out, "forceCoeffs.dat"), "# Force coefficients\n# Time\tCd\tCl\tCm\n0.1\t1.2\t0.01\t0.001\n0.2\t1.1\t-0.02\t0.002\n")

	s, err := GetCoeff(nopLogger{}, mustParams(map[string]interface{}{"function_name": "forceCoeffs", "time_step": 0}), dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"Cd", "Cl", "Cm"}, s.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interface{}{[]interface{}{1.2, 0.01, 0.001}, []interface{}{1.1, -0.02, 0.002}}, s.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestArtifactNameAndWrite(t *testing.T) {
	r := Default()

	name, err := r.ArtifactName(config.Entry{Func: "get_forces"}, "abc123")
	if err != nil || name != "forces.abc123.json" {
		t.Errorf("ArtifactName = %q, %v", name, err)
	}
	name, err = r.ArtifactName(config.Entry{Func: "get_probes", OutputName: "press"}, "abc123")
	if err != nil || name != "press.abc123.json" {
		t.Errorf("ArtifactName with outputname = %q, %v", name, err)
	}
	if _, err := r.ArtifactName(config.Entry{Func: "get_lift"}, "abc123"); err == nil {
		t.Error("expected error for unknown post function")
	}

	path := filepath.Join(t.TempDir(), "forces.abc123.json")
	s := &Series{Times: []float64{0.5}, Values: []interface{}{[]interface{}{1.0, 2.0}}}
	if err := WriteArtifact(path, "forces", s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `{"forces":[[1,2]],"times":[0.5]}`; got != want {
		t.Errorf("artifact = %s, want %s", got, want)
	}
}

func TestRegistryCheck(t *testing.T) {
	err := Default().Check([]config.Entry{{Func: "get_forces"}, {Func: "get_lift"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := fmt.Sprint(err); got != "post function get_lift not supported" {
		t.Errorf("unexpected message %q", got)
	}
}
