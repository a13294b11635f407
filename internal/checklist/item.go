package checklist

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Item is one checklist entry.
type Item struct {
	ID       int    `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Item     string `json:"item" yaml:"item"`
	Checked  bool   `json:"checked" yaml:"checked"`
}

// Categories in display order. Add only accepts these.
var Categories = []string{
	"Documents",
	"Water & Food",
	"First Aid",
	"Tools & Safety",
	"Clothing",
	"Communication",
	"Hygiene",
}

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults returns a fresh copy of the default go-bag checklist.
func Defaults() []Item {
	items, err := parseDefaults(defaultsYAML)
	if err != nil {
		// The file is embedded at build time; a parse failure is a build defect.
		panic(err)
	}
	return items
}

func parseDefaults(data []byte) ([]Item, error) {
	var items []Item
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse default checklist: %w", err)
	}
	return items, nil
}

// Group is the items of one category.
type Group struct {
	Category string `json:"category"`
	Items    []Item `json:"items"`
}

// GroupByCategory buckets items by Categories order, dropping empty
// categories. Items with an unknown category are collected last under
// their own names, in first-seen order.
func GroupByCategory(items []Item) []Group {
	byCat := make(map[string][]Item)
	var extra []string
	known := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
	}
	for _, it := range items {
		if !known[it.Category] && byCat[it.Category] == nil {
			extra = append(extra, it.Category)
		}
		byCat[it.Category] = append(byCat[it.Category], it)
	}

	var groups []Group
	for _, c := range append(append([]string{}, Categories...), extra...) {
		if len(byCat[c]) > 0 {
			groups = append(groups, Group{Category: c, Items: byCat[c]})
		}
	}
	return groups
}

// Progress summarizes completion.
type Progress struct {
	Checked int `json:"checked"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// ProgressOf counts checked items; Percent is rounded to the nearest
// integer and 0 for an empty list.
func ProgressOf(items []Item) Progress {
	p := Progress{Total: len(items)}
	for _, it := range items {
		if it.Checked {
			p.Checked++
		}
	}
	if p.Total > 0 {
		p.Percent = (p.Checked*200 + p.Total) / (2 * p.Total)
	}
	return p
}

// nextID returns max(id)+1, or 1 for an empty list.
func nextID(items []Item) int {
	max := 0
	for _, it := range items {
		if it.ID > max {
			max = it.ID
		}
	}
	return max + 1
}

// dedupe keeps the first item for each ID and never returns nil.
func dedupe(items []Item) []Item {
	out := make([]Item, 0, len(items))
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

func clone(items []Item) []Item {
	return append([]Item{}, items...)
}
