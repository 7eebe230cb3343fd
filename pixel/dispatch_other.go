//go:build !amd64

package pixel

func cpuFeatures() features {
	return features{}
}
