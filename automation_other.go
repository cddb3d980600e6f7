//go:build !windows && !darwin

package xlvba

import "fmt"

func hostImportModule(target, module string, cfg config) error {
	_, _, _ = target, module, cfg
	return fmt.Errorf("%w: importing module source needs the host application (windows or darwin); use Embed with a donor or default project instead", ErrPlatform)
}
