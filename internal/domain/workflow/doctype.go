package workflow

// DocType identifies one of the nine documents of the spending chain
type DocType string

const (
	DocNoteSEF          DocType = "note_sef"
	DocNoteAEF          DocType = "note_aef"
	DocImputation       DocType = "imputation"
	DocExpressionBesoin DocType = "expression_besoin"
	DocMarche           DocType = "marche"
	DocEngagement       DocType = "engagement"
	DocLiquidation      DocType = "liquidation"
	DocOrdonnancement   DocType = "ordonnancement"
	DocReglement        DocType = "reglement"
)

// AllDocTypes lists the chain documents in chain order
var AllDocTypes = []DocType{
	DocNoteSEF,
	DocNoteAEF,
	DocImputation,
	DocExpressionBesoin,
	DocMarche,
	DocEngagement,
	DocLiquidation,
	DocOrdonnancement,
	DocReglement,
}

// IsValid returns true if the document type is part of the chain
func (d DocType) IsValid() bool {
	_, ok := chainSteps[d]
	return ok
}

// Step returns the position (1..9) of the document in the chain, 0 if unknown
func (d DocType) Step() int {
	if s, ok := chainSteps[d]; ok {
		return s.Number
	}
	return 0
}

// Label returns the short display label of the document type
func (d DocType) Label() string {
	if s, ok := chainSteps[d]; ok {
		return s.LabelShort
	}
	return string(d)
}

// String returns the string representation of the document type
func (d DocType) String() string {
	return string(d)
}

// ParseDocType accepts a doc type value or a chain step code (NOTE_SEF, ...)
func ParseDocType(s string) (DocType, bool) {
	if d := DocType(s); d.IsValid() {
		return d, true
	}
	for d, step := range chainSteps {
		if step.Code == s {
			return d, true
		}
	}
	return "", false
}
