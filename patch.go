package xlvba

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// InjectOrRepair registers a VBA project inside the package at path: it
// patches the content-types manifest, workbook relationships, workbook and
// worksheet code names, and application properties, synthesizes a ribbon
// part when none exists, and writes the project bytes.
//
// The project bytes are written only when overwrite is set or the package
// has no xl/vbaProject.bin part yet; otherwise the existing bytes stay and
// only the metadata is repaired (some producers drop the registration even
// though the bytes survive). Every part outside the patch set is copied
// byte-identically, and the file is replaced atomically.
//
// project may be nil for a metadata-only repair of a package that already
// carries a project part. A missing required part ([Content_Types].xml,
// workbook relationships, workbook document) is ErrRepair.
func InjectOrRepair(path string, project []byte, opts ...Option) error {
	cfg := newConfig(opts)

	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: open package %s: %v", ErrRepair, path, err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	var worksheets []string
	for _, f := range zr.File {
		files[f.Name] = f
		if strings.HasPrefix(f.Name, worksheetPrefix+"sheet") && strings.HasSuffix(f.Name, ".xml") {
			worksheets = append(worksheets, f.Name)
		}
	}
	sortWorksheets(worksheets)

	required := func(name string) ([]byte, error) {
		f, ok := files[name]
		if !ok {
			return nil, fmt.Errorf("%w: required part %s missing", ErrRepair, name)
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrRepair, name, err)
		}
		return data, nil
	}
	optional := func(name string) []byte {
		f, ok := files[name]
		if !ok {
			return nil
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil
		}
		return data
	}

	ctData, err := required(contentTypesPart)
	if err != nil {
		zr.Close()
		return err
	}
	wbRelsData, err := required(workbookRelsPart)
	if err != nil {
		zr.Close()
		return err
	}
	wbData, err := required(workbookPart)
	if err != nil {
		zr.Close()
		return err
	}
	pkgRelsData := optional(packageRelsPart)
	appData := optional(appPropsPart)
	sheetData := make(map[string][]byte, len(worksheets))
	for _, name := range worksheets {
		if data := optional(name); data != nil {
			sheetData[name] = data
		}
	}
	_, hasProject := files[projectPart]
	_, hasUI := files[customUIPart]
	_, hasUI14 := files[customUI14Part]
	zr.Close()

	if project == nil && !hasProject {
		return fmt.Errorf("%w: package has no %s part and no project bytes were supplied", ErrRepair, projectPart)
	}

	workbookCT := workbookContentType
	if strings.EqualFold(filepath.Ext(path), ".xlam") {
		workbookCT = addinContentType
	}

	replace := make(map[string][]byte)

	ct, err := patchContentTypes(ctData, workbookCT)
	if err != nil {
		return err
	}
	rels, err := patchRelationships(workbookRelsPart, wbRelsData, projectRelType, "vbaProject.bin")
	if err != nil {
		return err
	}
	replace[workbookRelsPart] = rels

	wb, err := patchWorkbook(wbData)
	if err != nil {
		return err
	}
	replace[workbookPart] = wb

	for _, name := range worksheets {
		data, ok := sheetData[name]
		if !ok {
			continue
		}
		patched, err := patchWorksheet(data, worksheetCodeName(name))
		if err != nil {
			return err
		}
		replace[name] = patched
	}

	// Cosmetic; a failure to patch leaves the part alone.
	if appData != nil {
		if patched, err := patchAppProperties(appData); err == nil {
			replace[appPropsPart] = patched
		}
	}

	// Additive one-click ribbon button. Best-effort: a failure at any step
	// skips the whole registration rather than failing the repair.
	if cfg.ribbon && pkgRelsData != nil && !hasUI && !hasUI14 {
		if ctWithUI, err := addContentTypeOverride(ct, "/"+customUIPart, customUIContentType); err == nil {
			if pkgRels, err := patchRelationships(packageRelsPart, pkgRelsData, customUIRelType, customUIPart); err == nil {
				ct = ctWithUI
				replace[packageRelsPart] = pkgRels
				replace[customUIPart] = ribbonXML(cfg.ribbonCallback, cfg.ribbonTabLabel, cfg.ribbonGroupLabel, cfg.ribbonButtonLabel)
			}
		}
	}
	replace[contentTypesPart] = ct

	if project != nil && (cfg.overwrite || !hasProject) {
		replace[projectPart] = project
	}

	return rewritePackage(path, replace)
}

var worksheetOrdinalRe = regexp.MustCompile(`sheet(\d+)\.xml$`)

// worksheetCodeName derives the host's default code name from the part
// name's ordinal, so macro code addressing Sheet<N> finds a match.
func worksheetCodeName(partName string) string {
	if m := worksheetOrdinalRe.FindStringSubmatch(partName); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return "Sheet" + strconv.Itoa(n)
		}
	}
	return "Sheet1"
}

func sortWorksheets(names []string) {
	ordinal := func(name string) int {
		if m := worksheetOrdinalRe.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return n
			}
		}
		return 1 << 30
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := ordinal(names[i]), ordinal(names[j])
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
}

func parsePart(name string, data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrRepair, name, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: %s has no root element", ErrRepair, name)
	}
	return doc, nil
}

// childByTag matches on the local name only; some producers prefix every
// element even when a default namespace would do.
func childByTag(parent *etree.Element, local string) *etree.Element {
	for _, c := range parent.ChildElements() {
		if c.Tag == local {
			return c
		}
	}
	return nil
}

func childrenByTag(parent *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range parent.ChildElements() {
		if c.Tag == local {
			out = append(out, c)
		}
	}
	return out
}

// newChild creates an unattached element carrying the parent's namespace
// prefix, if any.
func newChild(parent *etree.Element, local string) *etree.Element {
	tag := local
	if parent.Space != "" {
		tag = parent.Space + ":" + local
	}
	return etree.NewElement(tag)
}

func patchContentTypes(data []byte, workbookCT string) ([]byte, error) {
	doc, err := parsePart(contentTypesPart, data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	setOverride(root, "/"+workbookPart, workbookCT)
	// An Override rather than a Default keeps other .bin parts unaffected.
	setOverride(root, "/"+projectPart, projectContentType)
	return doc.WriteToBytes()
}

func addContentTypeOverride(data []byte, partName, contentType string) ([]byte, error) {
	doc, err := parsePart(contentTypesPart, data)
	if err != nil {
		return nil, err
	}
	setOverride(doc.Root(), partName, contentType)
	return doc.WriteToBytes()
}

func setOverride(root *etree.Element, partName, contentType string) {
	for _, el := range childrenByTag(root, "Override") {
		if el.SelectAttrValue("PartName", "") == partName {
			el.CreateAttr("ContentType", contentType)
			return
		}
	}
	el := newChild(root, "Override")
	el.CreateAttr("PartName", partName)
	el.CreateAttr("ContentType", contentType)
	root.AddChild(el)
}

var relationshipIDRe = regexp.MustCompile(`^rId(\d+)$`)

// patchRelationships makes the part carry exactly one relationship of
// relType pointing at target: an existing one is retargeted in place (its
// id is stable and may be referenced elsewhere), otherwise a relationship
// with the next unused rIdN is appended.
func patchRelationships(name string, data []byte, relType, target string) ([]byte, error) {
	doc, err := parsePart(name, data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	rels := childrenByTag(root, "Relationship")
	for _, rel := range rels {
		if rel.SelectAttrValue("Type", "") == relType {
			rel.CreateAttr("Target", target)
			return doc.WriteToBytes()
		}
	}
	el := newChild(root, "Relationship")
	el.CreateAttr("Id", nextRelationshipID(rels))
	el.CreateAttr("Type", relType)
	el.CreateAttr("Target", target)
	root.AddChild(el)
	return doc.WriteToBytes()
}

func nextRelationshipID(rels []*etree.Element) string {
	existing := make(map[string]bool, len(rels))
	max := 0
	for _, rel := range rels {
		id := rel.SelectAttrValue("Id", "")
		if id == "" {
			continue
		}
		existing[id] = true
		if m := relationshipIDRe.FindStringSubmatch(id); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	id := "rId" + strconv.Itoa(max+1)
	for existing[id] {
		max++
		id = "rId" + strconv.Itoa(max+1)
	}
	return id
}

func patchWorkbook(data []byte) ([]byte, error) {
	doc, err := parsePart(workbookPart, data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()

	// Some host builds (notably on macOS) refuse macro workbooks without a
	// fileVersion element. It must come first.
	fv := childByTag(root, "fileVersion")
	if fv == nil {
		fv = newChild(root, "fileVersion")
		fv.CreateAttr("appName", "xl")
		fv.CreateAttr("lastEdited", "7")
		fv.CreateAttr("lowestEdited", "7")
		fv.CreateAttr("rupBuild", "11207")
		root.InsertChildAt(0, fv)
	} else if fv.SelectAttrValue("appName", "") == "" {
		fv.CreateAttr("appName", "xl")
	}

	wbPr := childByTag(root, "workbookPr")
	if wbPr == nil {
		wbPr = newChild(root, "workbookPr")
		root.InsertChildAt(fv.Index()+1, wbPr)
	}
	// Macro code refers to the workbook by its code name.
	if wbPr.SelectAttrValue("codeName", "") == "" {
		wbPr.CreateAttr("codeName", "ThisWorkbook")
	}
	return doc.WriteToBytes()
}

func patchWorksheet(data []byte, codeName string) ([]byte, error) {
	doc, err := parsePart("worksheet", data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	sheetPr := childByTag(root, "sheetPr")
	if sheetPr == nil {
		sheetPr = newChild(root, "sheetPr")
		root.InsertChildAt(0, sheetPr)
	}
	if sheetPr.SelectAttrValue("codeName", "") == "" {
		sheetPr.CreateAttr("codeName", codeName)
	}
	return doc.WriteToBytes()
}

// patchAppProperties makes the application-properties part look authored by
// the host. Some host builds are picky about workbooks whose recorded
// writer is a third-party library.
func patchAppProperties(data []byte) ([]byte, error) {
	doc, err := parsePart(appPropsPart, data)
	if err != nil {
		return nil, err
	}
	root := doc.Root()

	app := childByTag(root, "Application")
	if app == nil {
		app = newChild(root, "Application")
		root.AddChild(app)
	}
	appText := strings.TrimSpace(app.Text())
	foreign := appText == "" || strings.Contains(strings.ToLower(appText), "openpyxl")
	if foreign {
		app.SetText("Microsoft Excel")
	}

	version := childByTag(root, "AppVersion")
	if version == nil {
		version = newChild(root, "AppVersion")
		root.AddChild(version)
	}
	vText := strings.TrimSpace(version.Text())
	if foreign || vText == "" || strings.HasPrefix(vText, "3.") || strings.HasPrefix(vText, "0.") {
		version.SetText("16.0300")
	}
	return doc.WriteToBytes()
}

// ribbonXML renders a minimal one-button ribbon tab. The Office 2007
// customUI namespace has the broadest host support; the callback must be a
// Public Sub taking an IRibbonControl.
func ribbonXML(onAction, tabLabel, groupLabel, buttonLabel string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<customUI xmlns="http://schemas.microsoft.com/office/2006/01/customui">
  <ribbon>
    <tabs>
      <tab id="xlvbaTab" label="%s">
        <group id="xlvbaGroup" label="%s">
          <button id="xlvbaRun" label="%s" size="large" imageMso="Play" onAction="%s"/>
        </group>
      </tab>
    </tabs>
  </ribbon>
</customUI>
`, tabLabel, groupLabel, buttonLabel, onAction))
}
