//go:build !amd64 || noasm

package pixel

// Only the scalar references exist here.
var (
	bgr24Variants   = []variant[bgrFunc]{{"generic", bgr24Generic, always}}
	bgr48Variants   = []variant[bgrFunc]{{"generic", bgr48Generic, always}}
	gray16Variants  = []variant[gray16Func]{{"generic", gray16Generic, always}}
	restoreVariants = []variant[restoreFunc]{{"generic", restoreGeneric, always}}
)
