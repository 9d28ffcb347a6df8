// Command keypoolctl administers a key pool store directly, without the HTTP service.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
