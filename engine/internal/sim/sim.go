// Package sim resolves style queries without an engine subprocess.
//
// It is a development and testing stand-in, not a cascade implementation:
// markup is parsed for real and rule selectors are matched for real, but
// resolution is a flat pass over matching declarations ordered by
// importance, inline-vs-sheet origin, specificity and submission order,
// applied over a table of common initial values. At-rules, inheritance and
// shorthand expansion are out of scope. Every result is marked simulated so
// it can never pass for engine output.
package sim

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"

	"github.com/hazyhaar/styleq/query"
)

// candidate is one declaration competing for a property.
type candidate struct {
	value     string
	important bool
	inline    bool
	spec      cascadia.Specificity
	order     int
}

// beats reports whether c wins over cur under the flat cascade order.
// c is always the later declaration, so ties go to c.
func (c candidate) beats(cur candidate) bool {
	if c.important != cur.important {
		return c.important
	}
	if c.inline != cur.inline {
		return c.inline
	}
	if c.spec.Less(cur.spec) {
		return false
	}
	return true
}

// Resolve answers q from the simulated mapping. It never returns an error:
// unresolvable inputs become structured failed results, mirroring what the
// reporting script emits in real mode.
func Resolve(q query.StyleQuery) query.StyleResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(q.HTML))
	if err != nil {
		return simFailed(q.ID, "parse markup: "+err.Error())
	}

	matcher, err := cascadia.Compile(q.Selector)
	if err != nil {
		return simFailed(q.ID, "selector error: "+err.Error())
	}
	sel := doc.FindMatcher(matcher)
	if sel.Length() == 0 {
		return simFailed(q.ID, "no element matches selector: "+q.Selector)
	}
	node := sel.Get(0)

	computed := defaultStyles()
	winners := make(map[string]candidate)
	order := 0

	for _, sheet := range q.CSS {
		parsed, err := parser.Parse(sheet)
		if err != nil {
			// A broken stylesheet drops out of the cascade, like a
			// network-failed <link> would.
			continue
		}
		for _, rule := range parsed.Rules {
			order = applyRule(rule, node, winners, order)
		}
	}

	if style, ok := sel.Attr("style"); ok {
		// douceur drops the value of a final declaration with no
		// trailing semicolon, and authored style attributes usually
		// omit it.
		if trimmed := strings.TrimSpace(style); trimmed != "" && !strings.HasSuffix(trimmed, ";") {
			style = trimmed + ";"
		}
		if decls, err := parser.ParseDeclarations(style); err == nil {
			for _, d := range decls {
				order++
				consider(winners, d, candidate{important: d.Important, inline: true, order: order})
			}
		}
	}

	for prop, c := range winners {
		computed[prop] = normalizeValue(prop, c.value)
	}

	if q.AllProperties() {
		return query.StyleResult{ID: q.ID, Success: true, ComputedStyles: computed, Simulated: true}
	}
	value, ok := computed[q.Property]
	if !ok {
		return simFailed(q.ID, "property not resolved: "+q.Property)
	}
	return query.StyleResult{ID: q.ID, Success: true, ComputedValue: value, Simulated: true}
}

// applyRule feeds a qualified rule's declarations into the winner table when
// one of its selectors matches node. At-rules are skipped.
func applyRule(rule *css.Rule, node *html.Node, winners map[string]candidate, order int) int {
	if rule.Kind != css.QualifiedRule {
		return order
	}
	for _, selText := range rule.Selectors {
		s, err := cascadia.Parse(selText)
		if err != nil || !s.Match(node) {
			continue
		}
		spec := s.Specificity()
		for _, d := range rule.Declarations {
			order++
			consider(winners, d, candidate{important: d.Important, spec: spec, order: order})
		}
		// One matching selector of the group is enough; the highest
		// specificity among duplicates is a refinement real engines do
		// that this stand-in does not need.
		break
	}
	return order
}

func consider(winners map[string]candidate, d *css.Declaration, c candidate) {
	prop := strings.ToLower(strings.TrimSpace(d.Property))
	c.value = strings.TrimSpace(d.Value)
	if prop == "" || c.value == "" {
		// An empty value must never clobber a real one in the winner
		// table; a successful result always carries a value.
		return
	}
	cur, exists := winners[prop]
	if !exists || c.beats(cur) {
		winners[prop] = c
	}
}

func simFailed(id, msg string) query.StyleResult {
	r := query.Failed(id, msg)
	r.Simulated = true
	return r
}

// defaultStyles returns the initial computed values reported for any
// matched element before authored declarations apply.
func defaultStyles() map[string]string {
	return map[string]string{
		"display":             "block",
		"visibility":          "visible",
		"position":            "static",
		"z-index":             "auto",
		"opacity":             "1",
		"color":               "rgb(0, 0, 0)",
		"background-color":    "rgba(0, 0, 0, 0)",
		"font-family":         "serif",
		"font-size":           "16px",
		"font-weight":         "400",
		"font-style":          "normal",
		"line-height":         "normal",
		"text-align":          "start",
		"margin-top":          "0px",
		"margin-right":        "0px",
		"margin-bottom":       "0px",
		"margin-left":         "0px",
		"padding-top":         "0px",
		"padding-right":       "0px",
		"padding-bottom":      "0px",
		"padding-left":        "0px",
		"border-top-width":    "0px",
		"border-right-width":  "0px",
		"border-bottom-width": "0px",
		"border-left-width":   "0px",
	}
}
