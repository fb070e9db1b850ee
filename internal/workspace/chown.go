package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ChownToSudoUser hands path (recursively) back to the sudo-invoking user so
// later unprivileged `honeycluster runs/summarize` calls can read it. Outside
// sudo it does nothing. Per-file failures are ignored.
func ChownToSudoUser(path string) error {
	if os.Geteuid() != 0 {
		return nil
	}
	u, ok := sudoUserFromEnv(os.Getenv)
	if !ok {
		return nil
	}
	return chownTree(path, u.UID, u.GID)
}

func chownTree(root string, uid, gid int) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		_ = os.Lchown(root, uid, gid)
		return nil
	}
	var walkErr error
	_ = filepath.WalkDir(root, func(p string, _ fs.DirEntry, err error) error {
		if err != nil {
			walkErr = err
			return err
		}
		// Lchown: never follow symlinks out of the workspace.
		_ = os.Lchown(p, uid, gid)
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		return fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return nil
}
