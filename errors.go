package xlvba

import "errors"

var (
	ErrDecode               = errors.New("xlvba: invalid compressed stream")
	ErrRepair               = errors.New("xlvba: package repair failed")
	ErrDonor                = errors.New("xlvba: unusable donor project")
	ErrTarget               = errors.New("xlvba: invalid embed target")
	ErrPlatform             = errors.New("xlvba: platform not supported")
	ErrAutomationPermission = errors.New("xlvba: host automation permission denied")
	ErrAutomationTimeout    = errors.New("xlvba: host automation timed out")
)
