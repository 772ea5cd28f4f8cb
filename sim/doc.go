// Package sim supervises a hardware co-simulation run for differential testing.
//
// # Reading Guide
//
// Start with these files to understand run control:
//   - simv.go: the RUNNING → DONE/FAILED state machine, Step/NStep, Abort and Wait
//   - watchdog.go: the per-core instruction ceiling and CoreEndInfo
//   - oracle.go: the Difftest and RefProxy interfaces the state machine drives
//
// # Architecture
//
// The sim package defines run control and its interfaces; the data path lives
// in sub-packages:
//   - sim/mpool/: fixed-depth chunk pool between the DMA reader and the assembler
//   - sim/xdma/: DMA reader and snapshot assembler goroutines
//   - sim/diffstate/: per-core record wire format, Snapshot and its single-slot exchange
//   - sim/difftest/: snapshot-driven Difftest implementation
//   - sim/refproxy/: golden-trace RefProxy
//   - sim/trace/: run-control event trace
//
// Sub-packages register their implementations via init() functions that set
// package-level factory variables (NewRefProxyFunc).
package sim
