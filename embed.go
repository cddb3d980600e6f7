package xlvba

import (
	"archive/zip"
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Embed makes the package at path carry a registered VBA project without
// driving the host application.
//
// With WithDonor, the project binary is copied whole from the donor
// package after verifying it defines the expected callback symbol
// (ErrDonor otherwise). Without a donor, a target that already holds a
// project part gets a metadata-only repair (optionally routed through a
// WithCompatibilityPatch transform), and a target without one receives the
// WithDefaultProject binary.
//
// After any successful write the download-quarantine marker is cleared on
// platforms that have one; that step never fails the operation.
func Embed(path string, opts ...Option) error {
	cfg := newConfig(opts)
	target, err := checkTarget(path)
	if err != nil {
		return err
	}

	if cfg.donorPath != "" {
		bin, err := donorProject(cfg.donorPath)
		if err != nil {
			return err
		}
		if !HasSymbol(bin, cfg.callback) {
			return fmt.Errorf("%w: %s does not define %s; supply a donor that already has the macro embedded",
				ErrDonor, cfg.donorPath, cfg.callback)
		}
		if err := InjectOrRepair(target, bin, opts...); err != nil {
			return err
		}
		ClearQuarantine(target)
		return nil
	}

	if !cfg.overwrite {
		existing, ok, err := readProjectPart(target)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrTarget, path, err)
		}
		if ok {
			patched := existing
			if cfg.compatPatch != nil {
				if p := cfg.compatPatch(existing); p != nil {
					patched = p
				}
			}
			if !bytes.Equal(patched, existing) {
				err = InjectOrRepair(target, patched, append(opts, WithOverwrite(true))...)
			} else {
				err = InjectOrRepair(target, nil, opts...)
			}
			if err != nil {
				return err
			}
			ClearQuarantine(target)
			return nil
		}
	}

	if cfg.defaultProject == nil {
		return fmt.Errorf("%w: no donor package and no default project source configured", ErrDonor)
	}
	bin, err := cfg.defaultProject()
	if err != nil {
		return fmt.Errorf("%w: default project source: %v", ErrDonor, err)
	}
	if err := InjectOrRepair(target, bin, opts...); err != nil {
		return err
	}
	ClearQuarantine(target)
	return nil
}

// EmbedModule imports literal module source into the package through the
// host application's automation surface. Supported on Windows (COM; needs
// the "Trust access to the VBA project object model" setting) and macOS
// (AppleScript plus UI scripting; needs Automation and Accessibility
// permissions); ErrPlatform elsewhere.
//
// A target that already defines the callback symbol is left alone when
// overwrite is unset. With overwrite set it is an error: host-automated
// modules cannot be removed and reimported reliably, so the caller must
// regenerate from a clean base.
func EmbedModule(path, modulePath string, opts ...Option) error {
	cfg := newConfig(opts)
	target, err := checkTarget(path)
	if err != nil {
		return err
	}
	module, err := filepath.Abs(modulePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTarget, err)
	}
	if _, err := os.Stat(module); err != nil {
		return fmt.Errorf("%w: module source %s: %v", ErrTarget, modulePath, err)
	}

	if bin, ok, err := readProjectPart(target); err == nil && ok && HasSymbol(bin, cfg.callback) {
		if cfg.overwrite {
			return fmt.Errorf("%w: %s already defines %s; automatic reimport is not supported, regenerate from a clean base",
				ErrTarget, path, cfg.callback)
		}
		return nil
	}

	if err := hostImportModule(target, module, cfg); err != nil {
		return err
	}
	ClearQuarantine(target)
	return nil
}

// checkTarget resolves the target to an absolute path and validates that it
// exists and is a macro-capable package.
func checkTarget(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTarget, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrTarget, path, err)
	}
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".xlsm", ".xlam":
	default:
		return "", fmt.Errorf("%w: %s must be a .xlsm or .xlam package", ErrTarget, path)
	}
	return abs, nil
}

func donorProject(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDonor, err)
	}
	bin, ok, err := readProjectPart(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: read donor %s: %v", ErrDonor, path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: donor %s has no %s part", ErrDonor, path, projectPart)
	}
	return bin, nil
}

// readProjectPart reads the project binary out of a package, reporting
// whether the part exists.
func readProjectPart(path string) ([]byte, bool, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, false, err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == projectPart {
			data, err := readZipFile(f)
			if err != nil {
				return nil, false, err
			}
			return data, true, nil
		}
	}
	return nil, false, nil
}

var vbNameRe = regexp.MustCompile(`^\s*Attribute\s+VB_Name\s*=\s*"([^"]+)"\s*$`)

// parseModuleName reads the VB_Name attribute from the head of exported
// module source.
func parseModuleName(src []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(src))
	for i := 0; i < 20 && sc.Scan(); i++ {
		if m := vbNameRe.FindStringSubmatch(sc.Text()); m != nil {
			return m[1]
		}
	}
	return ""
}
