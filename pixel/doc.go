// Package pixel converts decoded slide samples into the canonical pixel
// formats used by the region reader.
//
// Every kernel has a scalar reference. On amd64 the BGR24, gray16 and
// hi/lo restore kernels also have SSSE3, AVX2 and AVX-512BW assembly
// bodies that process whole 16, 32 or 64 byte blocks and leave the tail to
// the scalar reference. The variant used by the public entry points is
// chosen once per kernel kind from the CPU features reported by
// golang.org/x/sys/cpu and then published atomically; later calls go
// straight to the bound function.
//
// Set OPENSLIDE_NO_SIMD=1 to force the scalar reference at run time, or
// build with the noasm tag to leave the assembly out.
//
// All kernels are pure functions over caller-owned slices. Length
// preconditions are checked at the exported boundary and violations panic.
package pixel
