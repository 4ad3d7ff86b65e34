package usecase

import (
	"regexp"
	"strings"
	"unicode"
)

// DocumentType is the canonical claimed document type. The legacy spelling
// "aadhar" is folded into DocumentTypeAadhaar at the boundary and never
// propagated inward.
type DocumentType string

const (
	DocumentTypeAadhaar  DocumentType = "aadhaar"
	DocumentTypePassport DocumentType = "passport"
	DocumentTypeOther    DocumentType = "other"
)

// documentTypeAliases maps accepted input spellings to canonical types.
var documentTypeAliases = map[string]DocumentType{
	"aadhaar":  DocumentTypeAadhaar,
	"aadhar":   DocumentTypeAadhaar,
	"passport": DocumentTypePassport,
	"other":    DocumentTypeOther,
}

// ParseDocumentType resolves an input spelling to a canonical DocumentType.
func ParseDocumentType(raw string) (DocumentType, bool) {
	t, ok := documentTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

// RequiresIdentityFields reports whether DOB and identity card number are
// mandatory for the document type.
func (t DocumentType) RequiresIdentityFields() bool {
	return t == DocumentTypeAadhaar || t == DocumentTypePassport
}

// Phrase signatures the corpus must carry for a claimed document type.
const (
	aadhaarSignature  = "unique identification authority"
	passportSignature = "republic of india"
)

var (
	aadhaarNumberPattern  = regexp.MustCompile(`^[0-9]{12}$`)
	passportNumberPattern = regexp.MustCompile(`^[A-Z0-9]{8,9}$`)
)

// matchesDocumentType is the type gate: the corpus must contain the phrase
// signature for the claimed type. "other" always passes; an unrecognized
// type never does.
func matchesDocumentType(docType DocumentType, corpus string) bool {
	switch docType {
	case DocumentTypeAadhaar:
		return strings.Contains(corpus, aadhaarSignature)
	case DocumentTypePassport:
		return strings.Contains(corpus, passportSignature)
	case DocumentTypeOther:
		return true
	default:
		return false
	}
}

func typeGateMessage(docType DocumentType) string {
	return string(docType) + " not found"
}

// matchesName checks the lowercased name as a substring of the corpus.
func matchesName(corpus, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	return name != "" && strings.Contains(corpus, name)
}

// dobRenderings expands a DD/MM/YYYY date into every literal representation
// the corpus is searched for. Malformed input yields nil.
func dobRenderings(dob string) []string {
	parts := strings.Split(strings.TrimSpace(dob), "/")
	if len(parts) != 3 {
		return nil
	}
	d, m, y := parts[0], parts[1], parts[2]
	if d == "" || m == "" || y == "" {
		return nil
	}
	return []string{
		d + "/" + m + "/" + y,
		d + "-" + m + "-" + y,
		y + "-" + m + "-" + d,
		y + "/" + m + "/" + d,
		d + m + y,
		y + m + d,
	}
}

// matchesDOB reports whether ANY rendering of the date appears in the corpus.
// A missing date when one is required is a match failure, not an error.
func matchesDOB(corpus, dob string) bool {
	for _, rendering := range dobRenderings(dob) {
		if strings.Contains(corpus, rendering) {
			return true
		}
	}
	return false
}

// validIDNumberFormat gates the identity card number before any corpus
// search: Aadhaar numbers must reduce to exactly 12 digits after stripping
// whitespace; passport numbers to 8-9 alphanumerics after stripping and
// upper-casing.
func validIDNumberFormat(docType DocumentType, number string) bool {
	stripped := stripWhitespace(number)
	switch docType {
	case DocumentTypeAadhaar:
		return aadhaarNumberPattern.MatchString(stripped)
	case DocumentTypePassport:
		return passportNumberPattern.MatchString(strings.ToUpper(stripped))
	default:
		return false
	}
}

// matchesIDNumber compares stripped-vs-stripped and raw-vs-raw forms against
// the corpus; either succeeding counts as a match.
func matchesIDNumber(corpus, number string) bool {
	strippedNumber := strings.ToLower(stripWhitespace(number))
	strippedCorpus := stripWhitespace(corpus)
	if strippedNumber != "" && strings.Contains(strippedCorpus, strippedNumber) {
		return true
	}
	raw := strings.ToLower(number)
	return raw != "" && strings.Contains(corpus, raw)
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
