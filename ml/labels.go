package ml

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Obesity levels of the training dataset, lightest first.
var ObesityLevels = []string{
	"Insufficient_Weight",
	"Normal_Weight",
	"Overweight_Level_I",
	"Overweight_Level_II",
	"Obesity_Type_I",
	"Obesity_Type_II",
	"Obesity_Type_III",
}

var levelDescriptions = map[string]string{
	"Insufficient_Weight": "Below normal weight range",
	"Normal_Weight":       "Healthy weight range",
	"Overweight_Level_I":  "Slightly above normal",
	"Overweight_Level_II": "Moderately above normal",
	"Obesity_Type_I":      "Mild obesity",
	"Obesity_Type_II":     "Moderate obesity",
	"Obesity_Type_III":    "Severe obesity",
}

// DisplayName turns a class label such as "Obesity_Type_II" into "Obesity Type II".
func DisplayName(label string) string {
	return cases.Title(language.English, cases.NoLower).String(strings.ReplaceAll(label, "_", " "))
}

// Describe returns a short human description of a class label.
func Describe(label string) string {
	if d, ok := levelDescriptions[label]; ok {
		return DisplayName(label) + " - " + d
	}
	return "Unknown category"
}
