// Package category maps free text onto the fixed recall category taxonomy.
package category

import "strings"

// Category names shared with the presentation layer.
const (
	FoodAndBeverages = "Food & Beverages"
	ToysAndChildrens = "Toys & Children's Products"
	Vehicles         = "Vehicles"
	HomeAppliances   = "Home Appliances"
	MedicalDevices   = "Medical Devices"
	ConsumerProducts = "Consumer Products"
)

type group struct {
	category string
	keywords []string
}

// Order matters: a text matching several groups gets the first one.
var groups = []group{
	{FoodAndBeverages, []string{"food", "beverage", "formula", "nutrition"}},
	{ToysAndChildrens, []string{"toy", "child", "infant", "baby"}},
	{Vehicles, []string{"car", "vehicle", "auto", "tire", "suv"}},
	{HomeAppliances, []string{"appliance", "kitchen", "home"}},
	{MedicalDevices, []string{"medical", "device", "drug"}},
}

// Categorize returns the category for a product, falling back to ConsumerProducts.
// Keywords match as substrings of the lower-cased "productName description" text.
func Categorize(productName, description string) string {
	text := strings.ToLower(productName + " " + description)
	for _, g := range groups {
		for _, kw := range g.keywords {
			if strings.Contains(text, kw) {
				return g.category
			}
		}
	}
	return ConsumerProducts
}

// All lists every category in taxonomy order, default last.
func All() []string {
	out := make([]string, 0, len(groups)+1)
	for _, g := range groups {
		out = append(out, g.category)
	}
	return append(out, ConsumerProducts)
}
