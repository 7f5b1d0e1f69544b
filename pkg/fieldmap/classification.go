package fieldmap

import "strings"

// Classification tags form a closed set; free-text values from the external
// CRM are folded into them through the synonym table below.
const (
	ClassificationVC           = "vc"
	ClassificationAngel        = "angel"
	ClassificationPE           = "pe"
	ClassificationFamilyOffice = "family_office"
	ClassificationCorporate    = "corporate"
	ClassificationAccelerator  = "accelerator"
)

var classificationSynonyms = map[string]string{
	"vc":                   ClassificationVC,
	"venture capital":      ClassificationVC,
	"venture capital firm": ClassificationVC,
	"venture fund":         ClassificationVC,
	"micro vc":             ClassificationVC,

	"angel":          ClassificationAngel,
	"angel investor": ClassificationAngel,
	"business angel": ClassificationAngel,
	"angel group":    ClassificationAngel,

	"pe":                  ClassificationPE,
	"private equity":      ClassificationPE,
	"private equity firm": ClassificationPE,
	"growth equity":       ClassificationPE,

	"family office":        ClassificationFamilyOffice,
	"single family office": ClassificationFamilyOffice,
	"multi family office":  ClassificationFamilyOffice,

	"corporate":    ClassificationCorporate,
	"corporate vc": ClassificationCorporate,
	"cvc":          ClassificationCorporate,
	"strategic":    ClassificationCorporate,

	"accelerator": ClassificationAccelerator,
	"incubator":   ClassificationAccelerator,
	"studio":      ClassificationAccelerator,
}

// NormalizeClassification folds a free-text type string into one of the
// classification tags. Unmatched vocabulary returns nil rather than an error
// so the pipeline never fails on unexpected values.
func NormalizeClassification(value string) *string {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return nil
	}
	tag, ok := classificationSynonyms[key]
	if !ok {
		return nil
	}
	return &tag
}
