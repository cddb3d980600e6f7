package xlvba

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"
)

// projectStream is one named stream of the compound-file project binary.
// The path joins parent storages and the stream name with "/".
type projectStream struct {
	path string
	data []byte
}

// projectStreams enumerates every stream in a compound-file blob. A blob
// that cannot be opened as a compound file is an error the callers treat as
// "no information available", never as fatal: some producers emit
// near-degenerate project binaries that are still worth a raw byte search.
func projectStreams(project []byte) ([]projectStream, error) {
	doc, err := mscfb.New(bytes.NewReader(project))
	if err != nil {
		return nil, err
	}
	var streams []projectStream
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size <= 0 {
			continue
		}
		data := make([]byte, entry.Size)
		n, rerr := io.ReadFull(entry, data)
		if n == 0 && rerr != nil {
			continue
		}
		parts := append(append([]string{}, entry.Path...), entry.Name)
		streams = append(streams, projectStream{path: strings.Join(parts, "/"), data: data[:n]})
	}
	return streams, nil
}

func findStream(streams []projectStream, path string) ([]byte, bool) {
	for _, s := range streams {
		if strings.EqualFold(s.path, path) {
			return s.data, true
		}
	}
	return nil, false
}

// symbolNeedles encodes a symbol in the 8-bit Western code page and UTF-8.
// Module source is stored in cp1252; attribute and reference records can
// carry either form. Runes with no cp1252 mapping are dropped from the
// code-page needle rather than failing the whole encoding.
func symbolNeedles(symbol string) [][]byte {
	if symbol == "" {
		return nil
	}
	var needles [][]byte
	cp := make([]byte, 0, len(symbol))
	for _, r := range symbol {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			cp = append(cp, b)
		}
	}
	if len(cp) > 0 {
		needles = append(needles, cp)
	}
	raw := []byte(symbol)
	if len(needles) == 0 || !bytes.Equal(needles[0], raw) {
		needles = append(needles, raw)
	}
	return needles
}

// asciiLower folds 'A'..'Z' byte-wise. Module streams are binary; they must
// not be reinterpreted as UTF-8 the way bytes.ToLower would, which rewrites
// invalid bytes as the 3-byte replacement sequence and shifts every offset
// after them.
func asciiLower(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return out
}

func containsAny(data []byte, needles [][]byte) bool {
	for _, n := range needles {
		if bytes.Contains(data, n) {
			return true
		}
	}
	return false
}

// HasSymbol reports whether a VBA project binary defines or references the
// given symbol.
//
// The fast path searches the raw bytes for the symbol in both encodings.
// The slow path opens the blob as a compound file and, in every stream,
// tries to decompress a module source container at each "\x00attribut"
// anchor, searching the decompressed bytes. Anchors that do not decode are
// skipped; a blob that is not a compound file yields false.
//
// Any match found by the fast path is also reachable by the slow path; the
// converse does not hold, since symbols may only occur compressed.
func HasSymbol(project []byte, symbol string) bool {
	needles := symbolNeedles(symbol)
	if len(needles) == 0 {
		return false
	}
	if containsAny(project, needles) {
		return true
	}
	streams, err := projectStreams(project)
	if err != nil {
		return false
	}
	for _, s := range streams {
		if scanStreamForSymbol(s.data, needles) {
			return true
		}
	}
	return false
}

func scanStreamForSymbol(data []byte, needles [][]byte) bool {
	lower := asciiLower(data)
	for start := 0; ; {
		idx := bytes.Index(lower[start:], moduleAnchor)
		if idx < 0 {
			return false
		}
		idx += start
		start = idx + 1
		if idx < 3 {
			continue
		}
		decoded, err := DecompressStream(data[idx-3:])
		if err != nil {
			// Not every anchor occurrence is a module boundary.
			continue
		}
		if containsAny(decoded, needles) {
			return true
		}
	}
}

// ExtractModuleSource returns the decompressed source text of the named
// module stream (path VBA/<moduleName>), decoded from the 8-bit Western
// code page with replacement of undecodable bytes. The second result is
// false when the stream is missing, carries no module container, or fails
// to decode.
func ExtractModuleSource(project []byte, moduleName string) (string, bool) {
	streams, err := projectStreams(project)
	if err != nil {
		return "", false
	}
	data, ok := findStream(streams, "VBA/"+moduleName)
	if !ok {
		return "", false
	}
	return decodeModuleStream(data)
}

// decodeModuleStream locates the module source container in a raw module
// stream. Unlike the scan in HasSymbol, a definite module is being targeted
// here, so the container signature must sit exactly 3 bytes before the
// anchor.
func decodeModuleStream(data []byte) (string, bool) {
	idx := bytes.Index(asciiLower(data), moduleAnchor)
	if idx < 3 {
		return "", false
	}
	if data[idx-3] != compressionSignature {
		return "", false
	}
	src, err := DecompressStream(data[idx-3:])
	if err != nil {
		return "", false
	}
	text, err := charmap.Windows1252.NewDecoder().Bytes(src)
	if err != nil {
		return "", false
	}
	return string(text), true
}

// countModulePrivate counts MODULEPRIVATE record pairs in the decompressed
// VBA/dir stream. Returns 0 when the stream is absent or undecodable.
func countModulePrivate(project []byte) int {
	streams, err := projectStreams(project)
	if err != nil {
		return 0
	}
	data, ok := findStream(streams, "VBA/dir")
	if !ok {
		return 0
	}
	raw, err := DecompressStream(data)
	if err != nil {
		return 0
	}
	return bytes.Count(raw, modulePrivatePattern)
}

var (
	addinVersionRe = regexp.MustCompile(`Private\s+Const\s+ADDIN_VERSION\s+As\s+String\s*=\s*"([^"]+)"`)
	shortVersionRe = regexp.MustCompile(`Private\s+Const\s+V\$?\s*=\s*"([^"]+)"`)
)

// extractMacroVersion pulls a version constant out of any module source in
// the project. Generated modules declare ADDIN_VERSION; older bundled
// projects use a terse V$ constant.
func extractMacroVersion(project []byte) string {
	streams, err := projectStreams(project)
	if err != nil {
		return ""
	}
	for _, s := range streams {
		rest, ok := strings.CutPrefix(strings.ToUpper(s.path), "VBA/")
		if !ok || rest == "" || strings.ContainsRune(rest, '/') {
			continue
		}
		src, ok := decodeModuleStream(s.data)
		if !ok {
			continue
		}
		if m := addinVersionRe.FindStringSubmatch(src); m != nil {
			return m[1]
		}
		if m := shortVersionRe.FindStringSubmatch(src); m != nil {
			return m[1]
		}
	}
	return ""
}
