package mods

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/foam"
)

// FanOut wraps op so that a decomposed case is edited in every processor folder
// as well as at the case root.
//
// Without processor folders the root result is returned. With them, op runs in
// each folder and then at the root: if every folder succeeded the result is
// success, otherwise the root result is reported. A root-level success therefore
// hides sub-domain failures; they are only logged as warnings.
func FanOut(op Op) Op {
	return func(log Logger, p config.Params, caseDir string) error {
		if _, err := os.Stat(caseDir); err != nil {
			return fmt.Errorf("could not find environment directory: %w", err)
		}

		procs, err := foam.ProcessorDirs(caseDir)
		if err != nil {
			return err
		}

		var folderErrs []error
		for _, dir := range procs {
			log.Infof("Modifying process folder %s.", filepath.Base(dir))
			if err := op(log, p, dir); err != nil {
				log.Warnf("Failed modding process folder %s: %v", dir, err)
				folderErrs = append(folderErrs, err)
			}
		}

		rootErr := op(log, p, caseDir)
		if len(procs) == 0 {
			return rootErr
		}
		if len(folderErrs) > 0 {
			log.Warnf("Failed editing process folders.")
			if rootErr != nil {
				return errors.Join(append([]error{rootErr}, folderErrs...)...)
			}
			return nil
		}
		if rootErr != nil {
			log.Warnf("Edit of case root failed after process folders succeeded: %v", rootErr)
		}
		return nil
	}
}
