//go:build !noort

package main

import (
	"github.com/gomithril/scriptmodule/config"
	"github.com/gomithril/scriptmodule/onnx"
)

func configureRuntime(cfg *config.Config) {
	onnx.Configure(onnx.Options{
		LibraryPath:       cfg.LibraryPath,
		IntraOpNumThreads: cfg.IntraOpThreads,
		InterOpNumThreads: cfg.InterOpThreads,
	})
}
