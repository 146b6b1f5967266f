// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains the one architecture this debugger core supports:
// x86-64 under the SysV ABI. Non-goals exclude other ABIs, so unlike its
// teacher (which also carried X86 and ARM tables) this package keeps a
// single set of constants rather than a selectable Architecture value.
package arch

import "encoding/binary"

// BreakpointSize is the size, in bytes, of the trap instruction written
// into the debugee's text by the breakpoint engine.
const BreakpointSize = 1

// BreakpointOpcode is the x86/x86-64 single-byte software breakpoint
// instruction, INT3.
const BreakpointOpcode byte = 0xCC

// PointerSize is the size, in bytes, of a pointer under the SysV AMD64 ABI.
const PointerSize = 8

// IntSize is the size, in bytes, of a machine word under this ABI.
const IntSize = 8

// ByteOrder is the byte order for integers and pointers on this architecture.
var ByteOrder binary.ByteOrder = binary.LittleEndian

// Uint reads an unsigned integer of the given byte width from buf.
func Uint(buf []byte) uint64 {
	switch len(buf) {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(ByteOrder.Uint16(buf))
	case 4:
		return uint64(ByteOrder.Uint32(buf))
	case 8:
		return ByteOrder.Uint64(buf)
	default:
		// Non-power-of-two widths still occur in DWARF scalar encodings;
		// fall back to a byte-at-a-time accumulate.
		var u uint64
		shift := uint(0)
		for _, c := range buf {
			u |= uint64(c) << shift
			shift += 8
		}
		return u
	}
}

// Int reads a signed integer of the given byte width from buf, sign
// extending from its natural width to 64 bits.
func Int(buf []byte) int64 {
	u := Uint(buf)
	switch len(buf) {
	case 1:
		return int64(int8(u))
	case 2:
		return int64(int16(u))
	case 4:
		return int64(int32(u))
	default:
		return int64(u)
	}
}

// Uintptr reads a pointer-width unsigned integer from buf.
func Uintptr(buf []byte) uint64 {
	if len(buf) != PointerSize {
		panic("bad PointerSize")
	}
	return ByteOrder.Uint64(buf)
}

// DWARF register numbers for the SysV AMD64 ABI (System V AMD64 psABI,
// table 3.36), as used by CFI expressions and the evaluation context's
// "registers at a PC further up the stack" reconstruction.
const (
	DwarfRAX = 0
	DwarfRDX = 1
	DwarfRCX = 2
	DwarfRBX = 3
	DwarfRSI = 4
	DwarfRDI = 5
	DwarfRBP = 6
	DwarfRSP = 7
	DwarfR8  = 8
	DwarfR9  = 9
	DwarfR10 = 10
	DwarfR11 = 11
	DwarfR12 = 12
	DwarfR13 = 13
	DwarfR14 = 14
	DwarfR15 = 15
	DwarfRIP = 16
)

// RegisterByName maps a user-facing register name to its DWARF register
// number, for the public facade's get_register/set_register operations.
var RegisterByName = map[string]int{
	"rax": DwarfRAX, "rdx": DwarfRDX, "rcx": DwarfRCX, "rbx": DwarfRBX,
	"rsi": DwarfRSI, "rdi": DwarfRDI, "rbp": DwarfRBP, "rsp": DwarfRSP,
	"r8": DwarfR8, "r9": DwarfR9, "r10": DwarfR10, "r11": DwarfR11,
	"r12": DwarfR12, "r13": DwarfR13, "r14": DwarfR14, "r15": DwarfR15,
	"rip": DwarfRIP, "pc": DwarfRIP,
}
