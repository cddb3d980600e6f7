package xlvba

// MS-OVBA 2.4.1 compressed container constants.
const (
	// compressionSignature is the first byte of every CompressedContainer.
	compressionSignature = 0x01

	// chunkSignature is the fixed 3-bit signature inside every chunk header.
	chunkSignature = 0b011

	// maxChunkSize is the largest on-wire chunk size including the 2-byte
	// header. Raw (uncompressed) chunks are always exactly this size.
	maxChunkSize = 4098

	// rawChunkDataSize is the literal payload of a raw chunk.
	rawChunkDataSize = 4096
)

// moduleAnchor marks the start of a module's Attribute lines inside a
// stream. The byte 3 positions before a match is the container signature.
// Matched case-insensitively.
var moduleAnchor = []byte("\x00attribut")

// modulePrivatePattern is the MODULEPRIVATE + MODULEVARIABLESPRIVATE record
// pair inside a decompressed VBA/dir stream. Modules carrying it do not
// show up in the host's macro list.
var modulePrivatePattern = []byte{0x28, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2B, 0x00, 0x00, 0x00, 0x00, 0x00}

// Well-known OPC part names.
const (
	contentTypesPart = "[Content_Types].xml"
	packageRelsPart  = "_rels/.rels"
	workbookRelsPart = "xl/_rels/workbook.xml.rels"
	workbookPart     = "xl/workbook.xml"
	appPropsPart     = "docProps/app.xml"
	projectPart      = "xl/vbaProject.bin"
	customUIPart     = "customUI/customUI.xml"
	customUI14Part   = "customUI/customUI14.xml"
	worksheetPrefix  = "xl/worksheets/"
)

// Well-known content types and relationship types.
const (
	workbookContentType = "application/vnd.ms-excel.sheet.macroEnabled.main+xml"
	addinContentType    = "application/vnd.ms-excel.addin.macroEnabled.main+xml"
	projectContentType  = "application/vnd.ms-office.vbaProject"
	customUIContentType = "application/vnd.ms-office.customUI+xml"

	projectRelType  = "http://schemas.microsoft.com/office/2006/relationships/vbaProject"
	customUIRelType = "http://schemas.microsoft.com/office/2006/relationships/ui/extensibility"
)
