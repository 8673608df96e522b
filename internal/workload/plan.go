// Package workload reads the Workload Plan the Arrival Generator replays,
// from the start, once per workload: an ordered, finite sequence of
// (inter_arrival_ms, kernel_id, num_executions) triples.
package workload

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/accelcore/dispatch/internal/task"
)

// Entry is one plan triple.
type Entry struct {
	InterArrivalMS float32
	KernelID       task.KernelID
	NumExecutions  int32
}

// Plan is an ordered, finite sequence of Entries, owned by the Arrival
// Generator for its lifetime.
type Plan struct {
	Entries []Entry
}

// LoadPlan reads three parallel binary files: a sequence of 32-bit IEEE
// 754 floats (inter-arrival ms), a sequence of signed 32-bit kernel
// identifiers, and a sequence of signed 32-bit execution counts. The
// three files must have equal length; a mismatch is a hard error rather
// than a silent truncation to the shortest file.
func LoadPlan(interArrivalPath, kernelIDPath, numExecutionsPath string) (*Plan, error) {
	iats, err := readFloat32s(interArrivalPath)
	if err != nil {
		return nil, fmt.Errorf("workload: inter-arrival file: %w", err)
	}
	kids, err := readInt32s(kernelIDPath)
	if err != nil {
		return nil, fmt.Errorf("workload: kernel-id file: %w", err)
	}
	execs, err := readInt32s(numExecutionsPath)
	if err != nil {
		return nil, fmt.Errorf("workload: num-executions file: %w", err)
	}

	if len(iats) != len(kids) || len(kids) != len(execs) {
		return nil, fmt.Errorf("workload: plan file length mismatch: inter_arrival=%d kernel_id=%d num_executions=%d",
			len(iats), len(kids), len(execs))
	}

	entries := make([]Entry, len(iats))
	for i := range entries {
		entries[i] = Entry{
			InterArrivalMS: iats[i],
			KernelID:       task.KernelID(kids[i]),
			NumExecutions:  execs[i],
		}
	}
	return &Plan{Entries: entries}, nil
}

func readFloat32s(path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float32
	for {
		var v float32
		if err := binary.Read(f, binary.LittleEndian, &v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func readInt32s(path string) ([]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []int32
	for {
		var v int32
		if err := binary.Read(f, binary.LittleEndian, &v); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
