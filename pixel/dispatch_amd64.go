//go:build amd64

package pixel

import "golang.org/x/sys/cpu"

func cpuFeatures() features {
	return features{
		ssse3:  cpu.X86.HasSSSE3,
		avx2:   cpu.X86.HasAVX2,
		avx512: cpu.X86.HasAVX512F && cpu.X86.HasAVX512BW,
	}
}
