package pipeline

import "os"

// readFile reads path fully, closing the underlying file handle before
// returning so LocalFile handlers own no unreleased resource across a
// suspension point.
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
