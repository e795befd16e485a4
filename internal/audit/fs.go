package audit

import (
	"os"
	"path/filepath"

	"github.com/gravitational/trace"
)

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return trace.ConvertSystemError(err)
		}
	}
	return nil
}
