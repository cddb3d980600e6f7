//go:build windows

package xlvba

import (
	"fmt"
	"os"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// hostImportModule imports module source through the host's COM object
// model. Requires the host's "Trust access to the VBA project object model"
// setting; without it, reading VBProject fails and is reported as a
// permission problem rather than a generic COM error.
func hostImportModule(target, module string, cfg config) error {
	if err := ole.CoInitialize(0); err != nil {
		return fmt.Errorf("%w: COM initialization: %v", ErrPlatform, err)
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Excel.Application")
	if err != nil {
		return fmt.Errorf("%w: the host application is not installed or not registered: %v", ErrPlatform, err)
	}
	excel, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlatform, err)
	}
	defer excel.Release()
	defer oleutil.CallMethod(excel, "Quit")

	oleutil.PutProperty(excel, "Visible", false)
	oleutil.PutProperty(excel, "DisplayAlerts", false)

	workbooks := oleutil.MustGetProperty(excel, "Workbooks").ToIDispatch()
	defer workbooks.Release()
	wbVariant, err := oleutil.CallMethod(workbooks, "Open", target)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", target, err)
	}
	wb := wbVariant.ToIDispatch()
	defer wb.Release()

	projVariant, err := oleutil.GetProperty(wb, "VBProject")
	if err != nil {
		return fmt.Errorf("%w: cannot access the VBA project; enable \"Trust access to the VBA project object model\" in the Trust Center and retry", ErrAutomationPermission)
	}
	proj := projVariant.ToIDispatch()
	defer proj.Release()

	components := oleutil.MustGetProperty(proj, "VBComponents").ToIDispatch()
	defer components.Release()

	if cfg.overwrite {
		if src, err := os.ReadFile(module); err == nil {
			if name := parseModuleName(src); name != "" {
				removeComponent(components, name)
			}
		}
	}

	if _, err := oleutil.CallMethod(components, "Import", module); err != nil {
		return fmt.Errorf("import module %s: %w", module, err)
	}
	if _, err := oleutil.CallMethod(wb, "Save"); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	_, err = oleutil.CallMethod(wb, "Close", true)
	return err
}

// removeComponent drops an existing module with the same VB_Name so Import
// does not create a Module1_1 style duplicate. Best-effort.
func removeComponent(components *ole.IDispatch, name string) {
	countVariant, err := oleutil.GetProperty(components, "Count")
	if err != nil {
		return
	}
	count := int(countVariant.Val)
	for i := 1; i <= count; i++ {
		itemVariant, err := oleutil.GetProperty(components, "Item", i)
		if err != nil {
			continue
		}
		item := itemVariant.ToIDispatch()
		nameVariant, err := oleutil.GetProperty(item, "Name")
		if err == nil && nameVariant.ToString() == name {
			oleutil.CallMethod(components, "Remove", item)
			item.Release()
			return
		}
		item.Release()
	}
}
