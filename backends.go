package scriptmodule

import (
	// runtime bindings available in every build
	_ "github.com/gomithril/scriptmodule/bundle"
	_ "github.com/gomithril/scriptmodule/onnxgo"
	_ "github.com/gomithril/scriptmodule/wasm"
)
