//go:build integration

package integration

import (
	"encoding/csv"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// binaryPath returns the path to the built CLI binary
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../knightshock",
		"./knightshock",
		filepath.Join(os.Getenv("GOPATH"), "bin", "knightshock"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../knightshock", "../cmd/knightshock")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../knightshock")
	return abs
}

// createTestConfig creates a temporary config file for testing
func createTestConfig(t *testing.T, dbPath, outputDir string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[general]
workers = 2
database_path = "` + dbPath + `"
output_dir = "` + outputDir + `"
log_level = "warn"

[simulation]
reactor = "constant-volume"
method = "inflection"

[notifications]
desktop = false
`
	writeFile(t, configPath, config)
	return configPath
}

func run(t *testing.T, binary string, args ...string) string {
	t.Helper()
	cmd := exec.Command(binary, args...)
	cmd.Dir = t.TempDir()
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// TestCLI_Mechanisms lists the embedded mechanisms
func TestCLI_Mechanisms(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t), t.TempDir())

	output := run(t, binary, "mechanisms", "--config", configPath)

	for _, id := range []string{"h2-global", "ch4-global"} {
		if !strings.Contains(output, id) {
			t.Errorf("Expected mechanism %s in output, got: %s", id, output)
		}
	}
	if !strings.Contains(output, "SPECIES") {
		t.Errorf("Expected table header in output, got: %s", output)
	}
}

// TestCLI_Sweep runs a small sweep and checks the table and database
func TestCLI_Sweep(t *testing.T) {
	binary := binaryPath(t)
	dbPath := TempDBPath(t)
	outputDir := t.TempDir()
	configPath := createTestConfig(t, dbPath, outputDir)

	output := run(t, binary, "sweep", PlanFixture(t, "h2-small.toml"), "--config", configPath)
	if !strings.Contains(output, "2 ok") {
		t.Errorf("Expected '2 ok' in output, got: %s", output)
	}

	f, err := os.Open(filepath.Join(outputDir, "h2-small.csv"))
	if err != nil {
		t.Fatalf("Expected result table: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read result table: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d records", len(records))
	}
	if records[0][0] != "case" || records[0][5] != "ignition_delay" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	for _, rec := range records[1:] {
		if rec[6] != "ok" {
			t.Errorf("Expected status ok, got %v", rec)
		}
	}

	// the sweep is recorded in the database
	list := run(t, binary, "results", "--config", configPath)
	if !strings.Contains(list, "h2-small") {
		t.Errorf("Expected sweep in results list, got: %s", list)
	}
}

// TestCLI_SweepNoDB skips the result database
func TestCLI_SweepNoDB(t *testing.T) {
	binary := binaryPath(t)
	dbPath := TempDBPath(t)
	configPath := createTestConfig(t, dbPath, t.TempDir())
	csvPath := filepath.Join(t.TempDir(), "out.csv")

	run(t, binary, "sweep", PlanFixture(t, "h2-small.toml"), "--config", configPath, "--no-db", "--csv", csvPath)

	if _, err := os.Stat(csvPath); err != nil {
		t.Errorf("Expected result table at %s: %v", csvPath, err)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("Expected no database, stat error = %v", err)
	}
}

// TestCLI_SweepInvalidPlan reports plan errors
func TestCLI_SweepInvalidPlan(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t), t.TempDir())
	planPath := filepath.Join(t.TempDir(), "empty.toml")
	writeFile(t, planPath, `mechanisms = ["h2-global"]`+"\n")

	cmd := exec.Command(binary, "sweep", planPath, "--config", configPath)
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("Expected sweep to fail for a plan without axes, got: %s", out)
	}
}

// TestCLI_Simulate runs a single case
func TestCLI_Simulate(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t), t.TempDir())

	output := run(t, binary, "simulate", "h2-global", "--config", configPath,
		"-T", "1400", "-P", "101325", "-X", "H2:2, O2:1, AR:7", "--horizon", "3e-3")

	if !strings.Contains(output, "Ignition:") || strings.Contains(output, "undefined") {
		t.Errorf("Expected a defined ignition delay, got: %s", output)
	}
	if !strings.Contains(output, "H2O") {
		t.Errorf("Expected H2O among the top species, got: %s", output)
	}
}

// TestCLI_Driver solves a helium-driven condition
func TestCLI_Driver(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t), t.TempDir())

	output := run(t, binary, "driver", "--config", configPath, "--gas", "He", "--p2", "1e6", "--u2", "600")

	if !strings.Contains(output, "Fill pressure P4") {
		t.Errorf("Expected fill pressure in output, got: %s", output)
	}
	if !strings.Contains(output, "He") {
		t.Errorf("Expected driver gas in output, got: %s", output)
	}
}

// TestCLI_Absorb inverts a two-species record
func TestCLI_Absorb(t *testing.T) {
	binary := binaryPath(t)
	configPath := createTestConfig(t, TempDBPath(t), t.TempDir())

	output := run(t, binary, "absorb", MeasurementFixture(t, "co-co2.toml"), "--config", configPath)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected header plus 3 samples, got: %s", output)
	}
	if !strings.Contains(lines[0], "CO2") {
		t.Errorf("Expected species header, got: %s", lines[0])
	}
}
