package asm

// Core opcodes used by the emitter.
const (
	opUnreachable byte = 0x00
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0b
	opBr          byte = 0x0c
	opBrIf        byte = 0x0d
	opReturn      byte = 0x0f
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opSelect      byte = 0x1b

	opLocalGet  byte = 0x20
	opLocalSet  byte = 0x21
	opLocalTee  byte = 0x22
	opGlobalGet byte = 0x23
	opGlobalSet byte = 0x24

	opI32Load  byte = 0x28
	opF32Load  byte = 0x2a
	opF64Load  byte = 0x2b
	opI32Store byte = 0x36
	opF32Store byte = 0x38
	opF64Store byte = 0x39

	opMemorySize byte = 0x3f
	opMemoryGrow byte = 0x40

	opI32Const byte = 0x41
	opF64Const byte = 0x44

	opI32Eqz byte = 0x45
	opI32Eq  byte = 0x46
	opI32Ne  byte = 0x47
	opI32LtS byte = 0x48
	opI32LtU byte = 0x49
	opI32GtS byte = 0x4a
	opI32GtU byte = 0x4b
	opI32LeU byte = 0x4d
	opI32GeU byte = 0x4f

	opI32Add  byte = 0x6a
	opI32Sub  byte = 0x6b
	opI32Mul  byte = 0x6c
	opI32DivU byte = 0x6e
	opI32RemU byte = 0x70
	opI32And  byte = 0x71
	opI32Or   byte = 0x72
	opI32Shl  byte = 0x74
	opI32ShrU byte = 0x76

	opF64Neg byte = 0x9a
	opF64Add byte = 0xa0
	opF64Sub byte = 0xa1
	opF64Mul byte = 0xa2
	opF64Div byte = 0xa3

	opF32DemoteF64   byte = 0xb6
	opF64ConvertI32U byte = 0xb8
	opF64PromoteF32  byte = 0xbb

	opBlockTypeEmpty byte = 0x40
	prefixSIMD       byte = 0xfd
)

// SIMD sub-opcodes (LEB128 encoded after the 0xfd prefix).
const (
	simdV128Load         uint32 = 0x00
	simdV128Store        uint32 = 0x0b
	simdV128Const        uint32 = 0x0c
	simdI8x16Shuffle     uint32 = 0x0d
	simdF64x2Splat       uint32 = 0x14
	simdF64x2ExtractLane uint32 = 0x21
	simdF64x2Add         uint32 = 0xf0
	simdF64x2Sub         uint32 = 0xf1
	simdF64x2Mul         uint32 = 0xf2
)
