package inference

import (
	"fmt"
	"regexp"
	"strings"
)

// workRule pairs a keyword set with the work type it implies. The first rule
// in the table whose any keyword occurs in the text wins.
type workRule struct {
	keywords []string
	result   WorkType
}

// cropRule pairs a keyword set with the crop it implies.
type cropRule struct {
	keywords []string
	result   CropType
}

// workRules is the fixed, ordered work-type rule table. Order is part of the
// contract: a transcript mentioning both 播種 and 収穫 is a seeding record.
var workRules = []workRule{
	{keywords: []string{"播種", "種まき"}, result: WorkSeeding},
	{keywords: []string{"植付", "植え付け"}, result: WorkPlanting},
	{keywords: []string{"施肥", "肥料"}, result: WorkFertilizing},
	{keywords: []string{"農薬", "散布"}, result: WorkPesticide},
	{keywords: []string{"除草", "草取り"}, result: WorkWeeding},
	{keywords: []string{"収穫", "刈り"}, result: WorkHarvesting},
	{keywords: []string{"点検", "確認"}, result: WorkInspection},
}

// cropRules is the fixed, ordered crop-type rule table.
var cropRules = []cropRule{
	{keywords: []string{"稲", "米"}, result: CropRice},
	{keywords: []string{"麦"}, result: CropWheat},
	{keywords: []string{"トウモロコシ"}, result: CropCorn},
	{keywords: []string{"大豆"}, result: CropSoybean},
	{keywords: []string{"ジャガイモ"}, result: CropPotato},
	{keywords: []string{"トマト"}, result: CropTomato},
	{keywords: []string{"キャベツ"}, result: CropCabbage},
	{keywords: []string{"レタス"}, result: CropLettuce},
}

// fieldPattern extracts a numeric field identifier: digits followed by a
// field-designator token. Only the first occurrence is used.
var fieldPattern = regexp.MustCompile(`(\d+)(?:号圃場|圃場|号)`)

// quantityPattern extracts a decimal number followed by a unit from the
// closed unit set. Longer unit spellings come before their prefixes (ha
// before a, ヘクタール before アール) so alternation picks the full unit.
var quantityPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(kg|キロ|ha|ヘクタール|a|アール|反|坪)`)

// Engine derives [Fields] from normalized transcript text. It is stateless
// and safe for concurrent use.
type Engine struct{}

// NewEngine returns an inference engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Infer runs the four extraction passes over normalized and returns the
// resulting fields. RawText is left empty; the orchestrator owns the original
// utterance and fills it in. Infer never fails: unmatched passes leave their
// field at the zero value.
func (e *Engine) Infer(normalized string) Fields {
	lower := strings.ToLower(normalized)

	var f Fields

	for _, r := range workRules {
		if containsAny(lower, r.keywords) {
			f.WorkType = r.result
			break
		}
	}

	for _, r := range cropRules {
		if containsAny(lower, r.keywords) {
			f.CropType = r.result
			break
		}
	}

	if m := fieldPattern.FindStringSubmatch(normalized); m != nil {
		f.FieldName = fmt.Sprintf("第%s圃場", m[1])
	}

	if m := quantityPattern.FindStringSubmatch(normalized); m != nil {
		f.Quantity = m[1] + m[2]
	}

	return f
}

// containsAny reports whether any keyword occurs as a substring of text.
func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
