// Package roofline reads the cache-aware roofline model CSV (spec.md §6,
// "roofline.csv"). This is the repository's one deliberate stdlib leaf
// (DESIGN.md, "Deliberate stdlib leaf"): no CSV-handling library appears
// anywhere in the retrieved corpus.
package roofline

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
)

// Model is the parsed body of a roofline.csv: per-cache-level sizes and the
// sequence of benchmark rows recorded underneath them.
type Model struct {
	L1Size int
	L2Size int
	L3Size int
	Rows   []Row
}

// Measurement is one {gbps|gflops, instpc} pair spec.md §6 groups under
// each of l1, l2, l3, dram, fp, fp_fma. Values are kept as the raw CSV
// strings, not parsed to numbers: analysis.py's get_general_analysis does
// the same, passing row fields straight through rather than validating
// them as numeric.
type Measurement struct {
	Value  string // GB/s for l1/l2/l3/dram, Gflop/s for fp/fp_fma
	InstPC string
}

// Row is one body row of roofline.csv.
type Row struct {
	Date        string
	ISA         string
	Precision   string
	Threads     string
	Loads       string
	Stores      string
	Interleaved string
	DRAMBytes   string
	FPInst      string

	L1    Measurement
	L2    Measurement
	L3    Measurement
	DRAM  Measurement
	FP    Measurement
	FPFMA Measurement
}

var headerRow1 = []string{
	"Name:", "", "L1 Size:", "", "L2 Size:", "", "L3 Size:", "", "",
	"L1", "L1", "L2", "L2", "L3", "L3", "DRAM", "DRAM", "FP", "FP", "FP FMA", "FP_FMA",
}

var headerRow1Positions = []int{0, 2, 4, 6, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}

var headerRow2 = []string{
	"Date", "ISA", "Precision", "Threads", "Loads", "Stores", "Interleaved",
	"DRAM Bytes", "FP Inst.", "GB/s", "I/Cycle", "GB/s", "I/Cycle", "GB/s",
	"I/Cycle", "GB/s", "I/Cycle", "Gflop/s", "I/Cycle", "Gflop/s", "I/Cycle",
}

const columnCount = 21

// Load parses the roofline CSV at path. It returns (nil, false) for a
// missing file or a header mismatch — spec.md §6 treats both as
// "not-available", never an error. A malformed (wrong-width) body row is
// skipped, not fatal to the rest of the file, matching
// analysis.py's `if row is None or len(row) != 21: continue`.
func Load(path string) (*Model, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (*Model, bool) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	row1, err := cr.Read()
	if err != nil || len(row1) != columnCount {
		return nil, false
	}
	for _, pos := range headerRow1Positions {
		if row1[pos] != headerRow1[pos] {
			return nil, false
		}
	}

	l1Size, err1 := strconv.Atoi(row1[3])
	l2Size, err2 := strconv.Atoi(row1[5])
	l3Size, err3 := strconv.Atoi(row1[7])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}

	row2, err := cr.Read()
	if err != nil || len(row2) != columnCount {
		return nil, false
	}
	for i, want := range headerRow2 {
		if row2[i] != want {
			return nil, false
		}
	}

	model := &Model{L1Size: l1Size, L2Size: l2Size, L3Size: l3Size}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false
		}
		if len(record) != columnCount {
			continue
		}
		model.Rows = append(model.Rows, parseRow(record))
	}

	return model, true
}

func parseRow(record []string) Row {
	return Row{
		Date:        record[0],
		ISA:         record[1],
		Precision:   record[2],
		Threads:     record[3],
		Loads:       record[4],
		Stores:      record[5],
		Interleaved: record[6],
		DRAMBytes:   record[7],
		FPInst:      record[8],
		L1:          Measurement{Value: record[9], InstPC: record[10]},
		L2:          Measurement{Value: record[11], InstPC: record[12]},
		L3:          Measurement{Value: record[13], InstPC: record[14]},
		DRAM:        Measurement{Value: record[15], InstPC: record[16]},
		FP:          Measurement{Value: record[17], InstPC: record[18]},
		FPFMA:       Measurement{Value: record[19], InstPC: record[20]},
	}
}
