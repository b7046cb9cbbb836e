// Command snapfs serves backup snapshots as a read-only filesystem over FUSE
// or WebDAV.
package main

import (
	"fmt"
	"os"

	"github.com/objectfs/snapfs/internal/logging"
)

func main() {
	err := newRootCmd().Execute()
	_ = logging.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapfs:", err.Error())
		os.Exit(1)
	}
}
