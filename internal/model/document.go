package model

// DocumentKind enumerates the statement formats the importer understands.
type DocumentKind int

// Document kinds, decided once per import by the detector.
const (
	DocUnknown DocumentKind = iota
	DocDelimited
	DocOFX
	DocCAMT
	DocImage
)

// String returns a human-readable name for the document kind.
func (k DocumentKind) String() string {
	switch k {
	case DocDelimited:
		return "delimited-text"
	case DocOFX:
		return "ofx"
	case DocCAMT:
		return "camt.053"
	case DocImage:
		return "image"
	default:
		return "unknown"
	}
}

// DocumentType describes a detected statement document and the parameters
// its parser needs. Determined once per import; immutable thereafter.
type DocumentType struct {
	Encoding    string // "utf-8" or "windows-1251"
	Version     string // OFX header version, e.g. "102" or "200"
	AccountKind string // CAMT account kind, e.g. "current" or "card"
	ImageFormat string // "png", "jpeg", "pdf"
	Kind        DocumentKind
	Delimiter   rune
}
