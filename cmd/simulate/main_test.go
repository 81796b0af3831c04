package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const catalogJSON = `{"version":1,"countries":[
  {"name":"Atlantis","gdp":1000,"public_debt":300,"inflation":0.02,"interest_rate":8,"tax_burden":40,"public_services":30,"services":50,"commodities":25,"manufactures":25}
]}`

func writeCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "countries.json"), []byte(catalogJSON), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return dir
}

func TestRun_SimulatesAndLogs(t *testing.T) {
	cfgDir := writeCatalog(t)
	logDir := t.TempDir()

	var out, errOut bytes.Buffer
	code := run([]string{"-configs", cfgDir, "-country", "Atlantis", "-ticks", "30", "-bond", "200", "-taxBurden", "45", "-log", logDir}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit=%d stderr=%s", code, errOut.String())
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// header + initial row + one row per month (3 ticks)
	if len(lines) != 12 {
		t.Fatalf("rows=%d\n%s", len(lines), out.String())
	}

	out.Reset()
	if code := run([]string{"-inspect", logDir}, &out, &errOut); code != 0 {
		t.Fatalf("inspect exit=%d stderr=%s", code, errOut.String())
	}
	if got := strings.Count(out.String(), "Atlantis"); got != 30 {
		t.Fatalf("inspect rows=%d\n%s", got, out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	cfgDir := writeCatalog(t)
	var out, errOut bytes.Buffer
	if code := run([]string{"-configs", cfgDir}, &out, &errOut); code != 2 {
		t.Fatalf("missing country exit=%d", code)
	}
	if code := run([]string{"-configs", cfgDir, "-country", "Mu"}, &out, &errOut); code != 1 {
		t.Fatalf("unknown country exit=%d", code)
	}
	if code := run([]string{"-configs", cfgDir, "-country", "Atlantis", "-interestRate", "40"}, &out, &errOut); code != 1 {
		t.Fatalf("bad lever exit=%d", code)
	}
	if code := run([]string{"-inspect", t.TempDir()}, &out, &errOut); code != 1 {
		t.Fatalf("empty inspect exit=%d", code)
	}
}
