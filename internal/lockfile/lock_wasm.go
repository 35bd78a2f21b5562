//go:build js && wasm

package lockfile

import (
	"fmt"
	"os"
)

func flockExclusive(f *os.File) error {
	// WASM doesn't support file locking; a WASM environment is
	// single-process anyway
	return fmt.Errorf("file locking not supported in WASM")
}
