package mods

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
)

type recordLogger struct {
	infos    []string
	warnings []string
}

func (l *recordLogger) Infof(format string, args ...interface{}) {
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func params(t *testing.T, yml string) config.Params {
	t.Helper()
	var e config.Entry
	if err := yamlEntry(yml, &e); err != nil {
		t.Fatalf("bad params yaml: %v", err)
	}
	return e.Params
}

func yamlEntry(yml string, e *config.Entry) error {
	job, err := config.ParseJob([]byte(`
id: 0
name: t
hash: h
params: {solver: s, np: 1, args: "", decompose: false, reconstruct: false}
mods:
  - func: x
    params:
`+indent(yml, "      ")), "test")
	if err != nil {
		return err
	}
	*e = job.Mods[0]
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n") + "\n"
}

const controlDict = `application     icoFoam;
startFrom       startTime;
startTime       0;
endTime         0.5;
`

func TestSetControlDict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, foam.ControlDict)
	writeFile(t, path, controlDict)

	log := &recordLogger{}
	err := SetControlDict(log, params(t, "props: {endTime: 2.0, deltaT: 0.01, startTime: 1}"), dir)
	if err == nil || !strings.Contains(err.Error(), "deltaT") {
		t.Fatalf("expected error naming missing deltaT, got %v", err)
	}
	if len(log.warnings) != 1 {
		t.Errorf("expected one warning, got %v", log.warnings)
	}

	want := "application     icoFoam;\nstartFrom       startTime;\nstartTime\t\t\t1;\nendTime\t\t\t2.0;\n"
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("controlDict mismatch (-want +got):\n%s", diff)
	}
}

func TestSetControlDictMissingFile(t *testing.T) {
	err := SetControlDict(&recordLogger{}, params(t, "props: {endTime: 1}"), t.TempDir())
	if !errors.Is(err, foam.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestSetDecomposeDict(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, foam.DecomposeParDict)
	writeFile(t, path, "numberOfSubdomains 2;\nmethod          scotch;\n")

	if err := SetDecomposeDict(&recordLogger{}, params(t, "props: {numberOfSubdomains: 4}"), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readFile(t, path); got != "numberOfSubdomains\t\t\t4;\nmethod          scotch;\n" {
		t.Errorf("unexpected decomposeParDict:\n%s", got)
	}
}

func TestSetViscosity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, foam.TransportProperties)
	writeFile(t, path, "transportModel  Newtonian;\n\nnu              [0 2 -1 0 0 0 0] 0.01;\n")

	if err := SetViscosity(&recordLogger{}, params(t, "visc: 0.002"), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "transportModel  Newtonian;\n\nnu\t\t\t\t[0 2 -1 0 0 0 0] 0.00200000;\n"
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("transportProperties mismatch (-want +got):\n%s", diff)
	}

	writeFile(t, path, "transportModel  Newtonian;\n")
	if err := SetViscosity(&recordLogger{}, params(t, "visc: 0.002"), dir); err == nil {
		t.Error("expected error when no nu entry exists")
	}
	if err := SetViscosity(&recordLogger{}, params(t, "symbol: nu"), dir); err == nil {
		t.Error("expected error when visc is missing")
	}
}

const velocityField = `FoamFile
{
    class       volVectorField;
}
boundaryField
{
    jet1
    {
        type            fixedValue;
        value           uniform (0 0 0);
    }
    walls
    {
        type            noSlip;
    }
}
`

func TestSetBoundary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.5", "U")
	writeFile(t, path, velocityField)

	p := params(t, `
field: U
boundary: jet1
time_step: 0.5
props:
  type: flowRateInletVelocity
  volumetricFlowRate: constant 0.1
`)
	if err := SetBoundary(&recordLogger{}, p, dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := strings.Index(velocityField, "jet1")
	end := strings.Index(velocityField, "    walls")
	want := velocityField[:start] +
		"jet1\n\t{\n\t\ttype\t\tflowRateInletVelocity;\n\t\tvolumetricFlowRate\t\tconstant 0.1;\n\t}\n" +
		velocityField[end:]
	if diff := cmp.Diff(want, readFile(t, path)); diff != "" {
		t.Errorf("field mismatch (-want +got):\n%s", diff)
	}
}

func TestSetBoundaryErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "0", "U"), "boundaryField\n{\n    jet1\n    {\n        type x;\n")

	err := SetBoundary(&recordLogger{}, params(t, "{field: U, boundary: jet1, time_step: 0, props: {type: y}}"), dir)
	if !errors.Is(err, foam.ErrUnbalanced) {
		t.Errorf("expected ErrUnbalanced, got %v", err)
	}
	err = SetBoundary(&recordLogger{}, params(t, "{field: U, boundary: inlet, time_step: 0, props: {type: y}}"), dir)
	if !errors.Is(err, foam.ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
	err = SetBoundary(&recordLogger{}, params(t, "{field: p, boundary: jet1, time_step: 0, props: {type: y}}"), dir)
	if !errors.Is(err, foam.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func timeDirNames(t *testing.T, dir string) []string {
	t.Helper()
	tds, err := foam.TimeDirs(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, td := range tds {
		names = append(names, td.Name)
	}
	sort.Strings(names)
	return names
}

func TestSetSavedFieldTimes(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0", "0.2", "0.4", "0.5", "1", "constant"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	if err := SetSavedFieldTimes(&recordLogger{}, params(t, "{save_interval: 0.2, save_times: [1.0]}"), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"0", "0.2", "0.4", "1"}, timeDirNames(t, dir)); diff != "" {
		t.Errorf("surviving time dirs mismatch (-want +got):\n%s", diff)
	}
	if !foam.Exists(filepath.Join(dir, "constant")) {
		t.Error("non-numeric directory removed")
	}
}

func TestSetSavedFieldTimesExplicitKeep(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0", "0.3", "0.5", "0.7"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := SetSavedFieldTimes(&recordLogger{}, params(t, "{save_interval: 0.5, save_times: [0.7]}"), dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"0", "0.5", "0.7"}, timeDirNames(t, dir)); diff != "" {
		t.Errorf("surviving time dirs mismatch (-want +got):\n%s", diff)
	}

	if err := SetSavedFieldTimes(&recordLogger{}, params(t, "{save_interval: 0}"), dir); err == nil {
		t.Error("expected error for zero save_interval")
	}
}

func TestRegistry(t *testing.T) {
	r := Default()
	for _, name := range []string{"set_control_dict", "set_decompose_dict", "set_viscosity", "set_boundary", "set_saved_field_times"} {
		if _, err := r.Lookup(name); err != nil {
			t.Errorf("expected %s registered: %v", name, err)
		}
	}

	var ue *UnknownOpError
	if _, err := r.Lookup("set_gravity"); !errors.As(err, &ue) || ue.Name != "set_gravity" {
		t.Errorf("expected UnknownOpError, got %v", err)
	}

	err := r.Check([]config.Entry{{Func: "set_viscosity"}, {Func: "nope"}, {Func: "also_nope"}})
	if err == nil || !strings.Contains(err.Error(), "nope") || !strings.Contains(err.Error(), "also_nope") {
		t.Errorf("expected both unknown names reported, got %v", err)
	}
}

func TestRegistryApplyContinues(t *testing.T) {
	r := NewRegistry()
	var ran []string
	r.Register("fail", func(log Logger, p config.Params, dir string) error {
		ran = append(ran, "fail")
		return errors.New("boom")
	})
	r.Register("ok", func(log Logger, p config.Params, dir string) error {
		ran = append(ran, "ok")
		return nil
	})

	err := r.Apply(&recordLogger{}, []config.Entry{{Func: "fail"}, {Func: "missing"}, {Func: "ok"}}, t.TempDir())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	var ue *UnknownOpError
	if !errors.As(err, &ue) {
		t.Errorf("expected UnknownOpError in aggregate, got %v", err)
	}
	if diff := cmp.Diff([]string{"fail", "ok"}, ran); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}
}
