// Package rules evaluates the allow/disallow rule lists that gate libraries
// and arguments on the host platform and on launch features.
package rules

import (
	"encoding/json"
	"fmt"
)

// Action is the effect of a rule item when its predicates hold.
type Action string

const (
	Allow    Action = "allow"
	Disallow Action = "disallow"
)

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch Action(s) {
	case Allow, Disallow:
		*a = Action(s)
		return nil
	}
	return fmt.Errorf("unknown rule action %q", s)
}

// Features are the launch flags feature predicates compare against.
type Features struct {
	Demo             bool
	CustomResolution bool
}

// OSPredicate restricts an item to an operating system. Empty fields match
// anything.
type OSPredicate struct {
	Name OS   `json:"name,omitempty"`
	Arch Arch `json:"arch,omitempty"`
	// Version is a regular expression on the OS version. It is carried but
	// never evaluated.
	Version string `json:"version,omitempty"`
}

// FeaturePredicate restricts an item to launches with the given flags. Nil
// fields match either value.
type FeaturePredicate struct {
	IsDemoUser          *bool `json:"is_demo_user,omitempty"`
	HasCustomResolution *bool `json:"has_custom_resolution,omitempty"`
}

// Item is a single rule.
type Item struct {
	Action   Action            `json:"action"`
	OS       *OSPredicate      `json:"os,omitempty"`
	Features *FeaturePredicate `json:"features,omitempty"`
}

// Tree is a list of rules that must all hold.
type Tree []Item

// Evaluate reports whether every item in the tree holds. An empty tree holds.
func (t Tree) Evaluate(p Platform, f Features) bool {
	for _, item := range t {
		if !item.Evaluate(p, f) {
			return false
		}
	}
	return true
}

// Evaluate reports whether the item holds: the conjunction of its present
// predicates, inverted for disallow items.
func (i Item) Evaluate(p Platform, f Features) bool {
	matched := i.OS.matches(p) && i.Features.matches(f)
	return matched != (i.Action == Disallow)
}

func (o *OSPredicate) matches(p Platform) bool {
	if o == nil {
		return true
	}
	if o.Name != "" && o.Name != p.OS {
		return false
	}
	if o.Arch != "" && p.Arch != Unknown && o.Arch != p.Arch {
		return false
	}
	// OS version ranges only ever gate workarounds for old Windows
	// releases, so they are treated as always satisfied.
	return true
}

func (fp *FeaturePredicate) matches(f Features) bool {
	if fp == nil {
		return true
	}
	if fp.IsDemoUser != nil && *fp.IsDemoUser != f.Demo {
		return false
	}
	if fp.HasCustomResolution != nil && *fp.HasCustomResolution != f.CustomResolution {
		return false
	}
	return true
}
