package sqlite

import (
	"os"

	"github.com/spf13/afero"
	"go.gazette.dev/docstore/persistence"
)

// File is a file of a Store's on-disk layout.
type File struct {
	// Path of the file.
	Path string
	// Role of the file: "database", "wal" or "shm".
	Role string
	// Exists is false if the file isn't present.
	Exists bool
	// Size of the file, in bytes.
	Size int64
}

// OnDiskFiles returns the files of a Store at |path| within |fs|: the main
// database file, and the write-ahead log and shared-memory index which
// accompany it in WAL mode. Files which don't exist are reported with
// Exists false.
func OnDiskFiles(fs afero.Fs, path string) ([]File, error) {
	var out = []File{
		{Path: path, Role: "database"},
		{Path: path + "-wal", Role: "wal"},
		{Path: path + "-shm", Role: "shm"},
	}
	for i := range out {
		var info, err = fs.Stat(out[i].Path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, persistence.NewStorageError("inspecting store files", err)
		}
		out[i].Exists, out[i].Size = true, info.Size()
	}
	return out, nil
}
