package xlvba

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

// RibbonInfo describes the first button of a ribbon customization part.
type RibbonInfo struct {
	Part     string `json:"part"`
	OnAction string `json:"on_action,omitempty"`
	Label    string `json:"label,omitempty"`
	ID       string `json:"id,omitempty"`
}

// Report collects macro-related facts about a package. Optional parts that
// are absent leave their fields zero; only an unreadable package fails.
type Report struct {
	Path                   string           `json:"path"`
	HasProject             bool             `json:"has_project"`
	HasCallback            bool             `json:"has_callback"`
	HasRibbonCallback      bool             `json:"has_ribbon_callback"`
	ProjectSize            int              `json:"project_size"`
	ModulePrivateRecords   int              `json:"module_private_records"`
	MacroVersion           string           `json:"macro_version,omitempty"`
	Ribbon                 *RibbonInfo      `json:"ribbon,omitempty"`
	Application            string           `json:"application,omitempty"`
	AppVersion             string           `json:"app_version,omitempty"`
	WorkbookHasFileVersion bool             `json:"workbook_has_file_version"`
	Quarantine             string           `json:"quarantine,omitempty"`
	PartSizes              map[string]int64 `json:"part_sizes,omitempty"`
}

// Inspect reports macro-related facts about the package at path. The
// callback symbols probed come from WithCallback and WithRibbonCallback.
//
// ModulePrivateRecords counts MODULEPRIVATE record pairs in the project's
// dir stream; a non-zero count usually explains an empty macro list in the
// host even though the project is registered.
func Inspect(path string, opts ...Option) (*Report, error) {
	cfg := newConfig(opts)
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: open package %s: %v", ErrRepair, path, err)
	}
	defer zr.Close()

	rep := &Report{Path: abs, PartSizes: make(map[string]int64)}
	if q, ok := QuarantineValue(abs); ok {
		rep.Quarantine = q
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
		switch {
		case f.Name == contentTypesPart, f.Name == packageRelsPart,
			f.Name == workbookPart, f.Name == workbookRelsPart, f.Name == projectPart:
			rep.PartSizes[f.Name] = int64(f.UncompressedSize64)
		case strings.HasPrefix(f.Name, worksheetPrefix) && strings.HasSuffix(f.Name, ".xml"):
			rep.PartSizes[f.Name] = int64(f.UncompressedSize64)
		}
	}

	if f := files[projectPart]; f != nil {
		rep.HasProject = true
		if bin, err := readZipFile(f); err == nil {
			rep.ProjectSize = len(bin)
			rep.HasCallback = HasSymbol(bin, cfg.callback)
			rep.HasRibbonCallback = HasSymbol(bin, cfg.ribbonCallback)
			rep.ModulePrivateRecords = countModulePrivate(bin)
			rep.MacroVersion = extractMacroVersion(bin)
		}
	}

	if f := files[customUIPart]; f != nil {
		info := &RibbonInfo{Part: customUIPart}
		if data, err := readZipFile(f); err == nil {
			fillRibbonInfo(info, data)
		}
		rep.Ribbon = info
	}

	if f := files[appPropsPart]; f != nil {
		if data, err := readZipFile(f); err == nil {
			rep.Application, rep.AppVersion = readAppProperties(data)
		}
	}
	if f := files[workbookPart]; f != nil {
		if data, err := readZipFile(f); err == nil {
			rep.WorkbookHasFileVersion = workbookHasFileVersion(data)
		}
	}
	return rep, nil
}

func fillRibbonInfo(info *RibbonInfo, data []byte) {
	doc := etree.NewDocument()
	if doc.ReadFromBytes(data) != nil || doc.Root() == nil {
		return
	}
	var walk func(e *etree.Element) bool
	walk = func(e *etree.Element) bool {
		if e.Tag == "button" {
			info.OnAction = e.SelectAttrValue("onAction", "")
			info.Label = e.SelectAttrValue("label", "")
			info.ID = e.SelectAttrValue("id", "")
			return true
		}
		for _, c := range e.ChildElements() {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc.Root())
}

func readAppProperties(data []byte) (app, version string) {
	doc := etree.NewDocument()
	if doc.ReadFromBytes(data) != nil || doc.Root() == nil {
		return "", ""
	}
	if el := childByTag(doc.Root(), "Application"); el != nil {
		app = strings.TrimSpace(el.Text())
	}
	if el := childByTag(doc.Root(), "AppVersion"); el != nil {
		version = strings.TrimSpace(el.Text())
	}
	return app, version
}

func workbookHasFileVersion(data []byte) bool {
	doc := etree.NewDocument()
	if doc.ReadFromBytes(data) != nil || doc.Root() == nil {
		return false
	}
	return childByTag(doc.Root(), "fileVersion") != nil
}
