package chromemdb

import "os"

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

func renameDir(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
