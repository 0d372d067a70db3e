package accentab

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/himanishpuri/AccentAB/pkg/accentab/storage"
	"github.com/himanishpuri/AccentAB/pkg/utils"
)

// OpenStore opens the named backend. For csv, path is the directory holding
// the two assignment files; for sqlite it is the database file, or a
// directory in which the default database file is created.
func OpenStore(backend, path string) (Store, error) {
	switch backend {
	case "", BackendCSV:
		if err := utils.MakeDir(path); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		return storage.OpenCSV(path)
	case BackendSQLite:
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			path = filepath.Join(path, storage.DefaultDBFile)
		}
		return storage.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
