//go:build !unix

package source

import (
	"errors"
	"os"
)

const mmapSupported = false

func mapFile(*os.File, int64, int) (Stream, error) {
	return nil, errors.New("memory mapping not supported on this platform")
}
