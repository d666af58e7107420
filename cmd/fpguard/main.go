// Command fpguard runs scripts as a page, with fingerprinting protection
// installed, and prints what was blocked.
//
//	fpguard run --base-url https://example.com/js --summary fp.js app.js
//	fpguard catalog
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
