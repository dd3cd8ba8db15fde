//go:build !noort

package scriptmodule

import (
	// ONNX Runtime needs cgo and the shared library at run time
	_ "github.com/gomithril/scriptmodule/onnx"
)
