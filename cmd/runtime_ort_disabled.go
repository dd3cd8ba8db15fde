//go:build noort

package main

import "github.com/gomithril/scriptmodule/config"

func configureRuntime(cfg *config.Config) {}
