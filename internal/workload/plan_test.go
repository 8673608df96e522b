package workload

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/accelcore/dispatch/internal/task"
)

func writeFloat32File(t *testing.T, path string, vals []float32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	for _, v := range vals {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func writeInt32File(t *testing.T, path string, vals []int32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	for _, v := range vals {
		if err := binary.Write(f, binary.LittleEndian, v); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestLoadPlan_HappyPath(t *testing.T) {
	dir := t.TempDir()
	iatPath := filepath.Join(dir, "iat.bin")
	kidPath := filepath.Join(dir, "kid.bin")
	execPath := filepath.Join(dir, "exec.bin")

	writeFloat32File(t, iatPath, []float32{0, 1, 1})
	writeInt32File(t, kidPath, []int32{0, 1, 2})
	writeInt32File(t, execPath, []int32{1, 1, 3})

	plan, err := LoadPlan(iatPath, kidPath, execPath)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if len(plan.Entries) != 3 {
		t.Fatalf("len(Entries) = %d, want 3", len(plan.Entries))
	}
	if plan.Entries[2].KernelID != task.KernelID(2) || plan.Entries[2].NumExecutions != 3 {
		t.Fatalf("entry 2 = %+v, unexpected", plan.Entries[2])
	}
}

func TestLoadPlan_LengthMismatchIsError(t *testing.T) {
	dir := t.TempDir()
	iatPath := filepath.Join(dir, "iat.bin")
	kidPath := filepath.Join(dir, "kid.bin")
	execPath := filepath.Join(dir, "exec.bin")

	writeFloat32File(t, iatPath, []float32{0, 1})
	writeInt32File(t, kidPath, []int32{0, 1, 2})
	writeInt32File(t, execPath, []int32{1, 1, 3})

	if _, err := LoadPlan(iatPath, kidPath, execPath); err == nil {
		t.Fatal("expected length-mismatch error")
	}
}
