// Package vm implements the Kuro runtime: values and heap objects, the
// collector, chunks and opcodes, a disassembler, and the stack-based
// interpreter that runs compiled functions.
//
// This package contains:
//   - Tagged value representation
//   - Heap objects (strings, functions, closures, upvalues, classes)
//   - Mark/sweep collection with pluggable root providers
//   - Bytecode chunks with short and long constant operands
//   - Bytecode interpreter
package vm
