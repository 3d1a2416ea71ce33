// Package inference derives structured work-record fields from a normalized
// transcript.
//
// Four independent extraction passes run over the same text: work type and
// crop type by ordered keyword rules, field identifier and quantity by
// regular expression. Absence of a match is a normal outcome — the
// corresponding field stays at its zero value and nothing ever errors.
package inference

// WorkType is the category of farm work described by an utterance.
// The zero value means "not inferred".
type WorkType string

const (
	WorkSeeding     WorkType = "seeding"
	WorkPlanting    WorkType = "planting"
	WorkFertilizing WorkType = "fertilizing"
	WorkPesticide   WorkType = "pesticide"
	WorkWeeding     WorkType = "weeding"
	WorkHarvesting  WorkType = "harvesting"
	WorkInspection  WorkType = "inspection"
)

// IsValid reports whether w is a recognised work type.
func (w WorkType) IsValid() bool {
	switch w {
	case WorkSeeding, WorkPlanting, WorkFertilizing, WorkPesticide,
		WorkWeeding, WorkHarvesting, WorkInspection:
		return true
	}
	return false
}

// Label returns the Japanese display label for w, or the raw value when
// unknown.
func (w WorkType) Label() string {
	switch w {
	case WorkSeeding:
		return "播種"
	case WorkPlanting:
		return "植付"
	case WorkFertilizing:
		return "施肥"
	case WorkPesticide:
		return "農薬散布"
	case WorkWeeding:
		return "除草"
	case WorkHarvesting:
		return "収穫"
	case WorkInspection:
		return "点検"
	}
	return string(w)
}

// CropType is the crop an utterance refers to. The zero value means
// "not inferred".
type CropType string

const (
	CropRice    CropType = "rice"
	CropWheat   CropType = "wheat"
	CropCorn    CropType = "corn"
	CropSoybean CropType = "soybean"
	CropPotato  CropType = "potato"
	CropTomato  CropType = "tomato"
	CropCabbage CropType = "cabbage"
	CropLettuce CropType = "lettuce"
)

// IsValid reports whether c is a recognised crop type.
func (c CropType) IsValid() bool {
	switch c {
	case CropRice, CropWheat, CropCorn, CropSoybean,
		CropPotato, CropTomato, CropCabbage, CropLettuce:
		return true
	}
	return false
}

// Label returns the Japanese display label for c, or the raw value when
// unknown.
func (c CropType) Label() string {
	switch c {
	case CropRice:
		return "稲"
	case CropWheat:
		return "麦"
	case CropCorn:
		return "トウモロコシ"
	case CropSoybean:
		return "大豆"
	case CropPotato:
		return "ジャガイモ"
	case CropTomato:
		return "トマト"
	case CropCabbage:
		return "キャベツ"
	case CropLettuce:
		return "レタス"
	}
	return string(c)
}

// Fields is the structured result inferred from one finalized utterance.
// Members the passes could not determine stay at their zero value; the engine
// never merges values across utterances, so a caller that wants to keep an
// earlier value must do so itself.
type Fields struct {
	// WorkType is the inferred work category, or "" when no rule matched.
	WorkType WorkType

	// CropType is the inferred crop, or "" when no rule matched.
	CropType CropType

	// FieldName is the canonical field name (e.g. "第3圃場"), or "".
	FieldName string

	// Quantity is the verbatim number+unit pair (e.g. "5kg"), or "".
	Quantity string

	// RawText is the original pre-normalization utterance. The display
	// collaborator uses it to populate an empty work-details form field and
	// must leave a non-empty one untouched.
	RawText string
}

// Empty reports whether no pass produced a value.
func (f Fields) Empty() bool {
	return f.WorkType == "" && f.CropType == "" && f.FieldName == "" && f.Quantity == ""
}
