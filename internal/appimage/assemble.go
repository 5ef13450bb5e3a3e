// Package appimage builds portable AppImage executables: it stages AppDir
// trees, produces the squashfs payload, and concatenates it onto the
// type2 runtime.
package appimage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// ExecutableMode is applied to every assembled artifact.
const ExecutableMode os.FileMode = 0o755

// Assemble writes destPath as the exact byte concatenation of runtimePath
// followed by imagePath, marks it executable and deletes imagePath. The
// artifact only appears at destPath once it is complete.
func Assemble(runtimePath, imagePath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	pending, err := renameio.TempFile(filepath.Dir(destPath), destPath)
	if err != nil {
		return fmt.Errorf("create pending artifact: %w", err)
	}
	defer pending.Cleanup()

	if err := appendFile(pending, runtimePath); err != nil {
		return fmt.Errorf("copy runtime: %w", err)
	}
	if err := appendFile(pending, imagePath); err != nil {
		return fmt.Errorf("copy image: %w", err)
	}

	if err := pending.Chmod(ExecutableMode); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("finalize artifact: %w", err)
	}

	if err := os.Remove(imagePath); err != nil {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

func appendFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
