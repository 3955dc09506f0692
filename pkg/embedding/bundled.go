package embedding

import (
	"embed"
	"io/fs"
)

//go:embed scripts/*.go
var bundled embed.FS

// BundledScripts returns the scripts shipped with the binary.
func BundledScripts() fs.FS {
	sub, err := fs.Sub(bundled, "scripts")
	if err != nil {
		panic(err)
	}
	return sub
}
