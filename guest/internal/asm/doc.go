// Package asm emits core WebAssembly binaries.
//
// It covers the subset needed by the engine generator: one linear memory,
// i32 globals, function imports and exports, structured control flow,
// scalar i32/f32/f64 arithmetic and the f64x2 slice of the SIMD proposal.
// Module.Encode produces a binary ready for wazero.CompileModule.
package asm
