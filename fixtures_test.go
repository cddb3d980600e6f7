package xlvba

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"unicode/utf16"
)

const (
	secFree = 0xFFFFFFFF
	secEOC  = 0xFFFFFFFE
	secFAT  = 0xFFFFFFFD

	dirNoStream = 0xFFFFFFFF

	// fixtureContentLen is sized so a single-chunk all-literal container
	// comes out at exactly 4096 bytes: 1 signature + 2 header + 3638
	// literals + 455 flag bytes. A 4096-byte stream stays out of the
	// compound file's mini FAT.
	fixtureContentLen = 3638
)

const testCallback = "ClearMLDatasetExcel_Run"

// ovbaLiteralContainer wraps content in a compressed container using only
// literal tokens: one clear flag byte per 8 content bytes. Content must fit
// in a single chunk.
func ovbaLiteralContainer(t *testing.T, content []byte) []byte {
	t.Helper()
	if len(content) > rawChunkDataSize {
		t.Fatalf("content is %d bytes, does not fit one chunk", len(content))
	}
	body := make([]byte, 0, len(content)+len(content)/8+1)
	for i := 0; i < len(content); i += 8 {
		end := min(i+8, len(content))
		body = append(body, 0x00)
		body = append(body, content[i:end]...)
	}
	out := make([]byte, 3, 3+len(body))
	out[0] = compressionSignature
	binary.LittleEndian.PutUint16(out[1:], 0x8000|uint16(chunkSignature)<<12|uint16(len(body)+2-3))
	return append(out, body...)
}

// fixtureContent pads head with spaces to exactly fixtureContentLen bytes.
func fixtureContent(t *testing.T, head []byte) []byte {
	t.Helper()
	if len(head) > fixtureContentLen {
		t.Fatalf("fixture head is %d bytes, exceeds %d", len(head), fixtureContentLen)
	}
	content := make([]byte, fixtureContentLen)
	copy(content, head)
	for i := len(head); i < fixtureContentLen; i++ {
		content[i] = ' '
	}
	return content
}

func moduleFixtureSource(t *testing.T) []byte {
	t.Helper()
	head := []byte("Attribute VB_Name = \"Module1\"\r\n" +
		"Private Const ADDIN_VERSION As String = \"1.4.2\"\r\n" +
		"Public Sub " + testCallback + "()\r\n" +
		"End Sub\r\n" +
		"Public Sub " + testCallback + "_Ribbon(control As Object)\r\n" +
		"End Sub\r\n")
	return fixtureContent(t, head)
}

// moduleFixtureProject builds a compound-file project whose single module
// defines the test callback. The symbol occurs only in compressed form: the
// all-literal encoding inserts a flag byte every 8 bytes, so no run longer
// than 8 bytes survives verbatim.
func moduleFixtureProject(t *testing.T) []byte {
	t.Helper()
	module := ovbaLiteralContainer(t, moduleFixtureSource(t))
	return buildVBAProject(t, cfbStream{name: "Module1", data: module})
}

// projectWithDirStream adds a VBA/dir stream carrying two MODULEPRIVATE
// record pairs.
func projectWithDirStream(t *testing.T) []byte {
	t.Helper()
	module := ovbaLiteralContainer(t, moduleFixtureSource(t))
	head := append(append([]byte{}, modulePrivatePattern...), modulePrivatePattern...)
	dir := ovbaLiteralContainer(t, fixtureContent(t, head))
	return buildVBAProject(t,
		cfbStream{name: "Module1", data: module},
		cfbStream{name: "dir", data: dir})
}

type cfbStream struct {
	name string
	data []byte
}

// buildVBAProject assembles a minimal v3 compound file: one FAT sector, one
// directory sector, and the given streams inside a VBA storage. Every
// stream must be exactly 4096 bytes (8 sectors).
func buildVBAProject(t *testing.T, streams ...cfbStream) []byte {
	t.Helper()
	if len(streams) == 0 || len(streams) > 2 {
		t.Fatalf("fixture supports 1 or 2 streams, got %d", len(streams))
	}
	for _, s := range streams {
		if len(s.data) != 4096 {
			t.Fatalf("stream %s is %d bytes, want 4096", s.name, len(s.data))
		}
	}
	// Directory-entry name order: shorter first, then case-insensitive.
	sort.Slice(streams, func(i, j int) bool {
		a, b := streams[i].name, streams[j].name
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return strings.ToUpper(a) < strings.ToUpper(b)
	})

	const sectorsPerStream = 8
	fat := make([]uint32, 128)
	for i := range fat {
		fat[i] = secFree
	}
	fat[0] = secFAT
	fat[1] = secEOC // directory chain
	starts := make([]uint32, len(streams))
	next := uint32(2)
	for i := range streams {
		starts[i] = next
		for s := next; s < next+sectorsPerStream-1; s++ {
			fat[s] = s + 1
		}
		fat[next+sectorsPerStream-1] = secEOC
		next += sectorsPerStream
	}
	fatSector := make([]byte, 512)
	for i, v := range fat {
		binary.LittleEndian.PutUint32(fatSector[4*i:], v)
	}

	dir := make([]byte, 512)
	copy(dir[0:], dirEntry("Root Entry", 5, dirNoStream, dirNoStream, 1, secEOC, 0))
	copy(dir[128:], dirEntry("VBA", 1, dirNoStream, dirNoStream, 2, 0, 0))
	right := uint32(dirNoStream)
	if len(streams) == 2 {
		right = 3
	}
	copy(dir[256:], dirEntry(streams[0].name, 2, dirNoStream, right, dirNoStream, starts[0], uint64(len(streams[0].data))))
	if len(streams) == 2 {
		copy(dir[384:], dirEntry(streams[1].name, 2, dirNoStream, dirNoStream, dirNoStream, starts[1], uint64(len(streams[1].data))))
	}

	var buf bytes.Buffer
	buf.Write(cfbHeader())
	buf.Write(fatSector)
	buf.Write(dir)
	for _, s := range streams {
		buf.Write(s.data)
	}
	return buf.Bytes()
}

func cfbHeader() []byte {
	h := make([]byte, 512)
	copy(h, []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	binary.LittleEndian.PutUint16(h[24:], 0x003E) // minor version
	binary.LittleEndian.PutUint16(h[26:], 0x0003) // major version 3
	binary.LittleEndian.PutUint16(h[28:], 0xFFFE) // byte order
	binary.LittleEndian.PutUint16(h[30:], 9)      // 512-byte sectors
	binary.LittleEndian.PutUint16(h[32:], 6)      // 64-byte mini sectors
	binary.LittleEndian.PutUint32(h[44:], 1)      // FAT sector count
	binary.LittleEndian.PutUint32(h[48:], 1)      // first directory sector
	binary.LittleEndian.PutUint32(h[56:], 4096)   // mini stream cutoff
	binary.LittleEndian.PutUint32(h[60:], secEOC) // no mini FAT
	binary.LittleEndian.PutUint32(h[68:], secEOC) // no DIFAT sectors
	binary.LittleEndian.PutUint32(h[76:], 0)      // DIFAT[0]: FAT at sector 0
	for i := 80; i < 512; i += 4 {
		binary.LittleEndian.PutUint32(h[i:], secFree)
	}
	return h
}

func dirEntry(name string, objType byte, left, right, child, start uint32, size uint64) []byte {
	e := make([]byte, 128)
	u := utf16.Encode([]rune(name))
	for i, c := range u {
		binary.LittleEndian.PutUint16(e[2*i:], c)
	}
	binary.LittleEndian.PutUint16(e[64:], uint16(2*(len(u)+1)))
	e[66] = objType
	e[67] = 1 // black
	binary.LittleEndian.PutUint32(e[68:], left)
	binary.LittleEndian.PutUint32(e[72:], right)
	binary.LittleEndian.PutUint32(e[76:], child)
	binary.LittleEndian.PutUint32(e[116:], start)
	binary.LittleEndian.PutUint64(e[120:], size)
	return e
}

// basePackageParts is a minimal workbook package as a third-party writer
// would emit it: no fileVersion, no code names, openpyxl app properties.
// xl/styles.xml serves as an untouched marker part.
func basePackageParts() map[string][]byte {
	return map[string][]byte{
		contentTypesPart: []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/><Default Extension="xml" ContentType="application/xml"/><Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/><Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/><Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/></Types>`),
		packageRelsPart:  []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/></Relationships>`),
		workbookPart:     []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"><sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets></workbook>`),
		workbookRelsPart: []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/></Relationships>`),
		"xl/worksheets/sheet1.xml": []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData/></worksheet>`),
		appPropsPart:     []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties"><Application>openpyxl</Application><AppVersion>3.1</AppVersion></Properties>`),
		"xl/styles.xml":  []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?><styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"/>`),
	}
}

func writeTestPackage(t *testing.T, path string, parts map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(parts[name]); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func readTestPart(t *testing.T, path, name string) ([]byte, bool) {
	t.Helper()
	parts := readAllParts(t, path)
	data, ok := parts[name]
	return data, ok
}

func readAllParts(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	parts := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		parts[f.Name] = data
	}
	return parts
}
