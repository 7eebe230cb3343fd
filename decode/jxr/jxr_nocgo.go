//go:build !libjxr || !cgo

package jxr

var nativeCodec Codec
