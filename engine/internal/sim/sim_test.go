package sim

import (
	"testing"

	"github.com/hazyhaar/styleq/query"
)

func colorQuery(html string, css []string, selector string) query.StyleQuery {
	return query.StyleQuery{
		ID:       "q_sim",
		HTML:     html,
		CSS:      css,
		Selector: selector,
		Property: "color",
	}
}

func TestResolve_ClassRule(t *testing.T) {
	// The canonical scenario: .highlight { color: red; } resolves to the
	// rgb serialization an engine would report.
	r := Resolve(colorQuery(
		"<div class='highlight'>x</div>",
		[]string{".highlight { color: red; }"},
		".highlight",
	))
	if !r.Success {
		t.Fatalf("Resolve: %+v", r)
	}
	if r.ComputedValue != "rgb(255, 0, 0)" {
		t.Fatalf("Resolve: got %q, want rgb(255, 0, 0)", r.ComputedValue)
	}
	if !r.Simulated {
		t.Fatal("Resolve: result not marked simulated")
	}
}

func TestResolve_LaterSheetWinsOnEqualSpecificity(t *testing.T) {
	r := Resolve(colorQuery(
		"<p class='a'>x</p>",
		[]string{".a { color: red; }", ".a { color: blue; }"},
		".a",
	))
	if r.ComputedValue != "rgb(0, 0, 255)" {
		t.Fatalf("Resolve: got %q, want rgb(0, 0, 255)", r.ComputedValue)
	}
}

func TestResolve_HigherSpecificityWins(t *testing.T) {
	r := Resolve(colorQuery(
		"<div id='main' class='a'>x</div>",
		[]string{"#main { color: green; }", ".a { color: blue; }"},
		".a",
	))
	if r.ComputedValue != "rgb(0, 128, 0)" {
		t.Fatalf("Resolve: got %q, want id rule to win", r.ComputedValue)
	}
}

func TestResolve_ImportantBeatsSpecificity(t *testing.T) {
	r := Resolve(colorQuery(
		"<div id='main' class='a'>x</div>",
		[]string{".a { color: blue !important; }", "#main { color: green; }"},
		".a",
	))
	if r.ComputedValue != "rgb(0, 0, 255)" {
		t.Fatalf("Resolve: got %q, want !important rule to win", r.ComputedValue)
	}
}

func TestResolve_InlineStyleBeatsSheets(t *testing.T) {
	r := Resolve(colorQuery(
		`<div id='main' style='color: teal'>x</div>`,
		[]string{"#main { color: green; }"},
		"#main",
	))
	if r.ComputedValue != "rgb(0, 128, 128)" {
		t.Fatalf("Resolve: got %q, want inline style to win", r.ComputedValue)
	}
}

// A lone inline declaration with no trailing semicolon must still parse to
// its full value; a successful single-property result never carries an
// empty computed value.
func TestResolve_InlineStyleWithoutSemicolon(t *testing.T) {
	for _, style := range []string{"color: teal", "color: teal;", " color: teal ; "} {
		r := Resolve(colorQuery(
			`<div id='main' style='`+style+`'>x</div>`,
			[]string{"#main { color: green; }"},
			"#main",
		))
		if !r.Success {
			t.Fatalf("Resolve(%q): %+v", style, r)
		}
		if r.ComputedValue != "rgb(0, 128, 128)" {
			t.Fatalf("Resolve(%q): got %q, want rgb(0, 128, 128)", style, r.ComputedValue)
		}
	}
}

func TestResolve_EmptyValueNeverWins(t *testing.T) {
	r := Resolve(colorQuery(
		`<div id='main' style='color:'>x</div>`,
		[]string{"#main { color: green; }"},
		"#main",
	))
	if r.ComputedValue != "rgb(0, 128, 0)" {
		t.Fatalf("Resolve: got %q, want the sheet value to survive", r.ComputedValue)
	}
}

func TestResolve_HexColorNormalized(t *testing.T) {
	r := Resolve(colorQuery(
		"<div class='h'>x</div>",
		[]string{".h { color: #ff8000; }"},
		".h",
	))
	if r.ComputedValue != "rgb(255, 128, 0)" {
		t.Fatalf("Resolve: got %q", r.ComputedValue)
	}
}

func TestResolve_DefaultWhenNothingMatches(t *testing.T) {
	r := Resolve(colorQuery(
		"<div class='a'>x</div>",
		[]string{".other { color: red; }"},
		".a",
	))
	if !r.Success || r.ComputedValue != "rgb(0, 0, 0)" {
		t.Fatalf("Resolve: got %+v, want default color", r)
	}
}

func TestResolve_ElementNotMatched(t *testing.T) {
	r := Resolve(colorQuery("<div>x</div>", nil, ".missing"))
	if r.Success {
		t.Fatalf("Resolve: expected structured failure, got %+v", r)
	}
	if r.Error == "" || r.ID != "q_sim" {
		t.Fatalf("Resolve: malformed failure result %+v", r)
	}
}

func TestResolve_MalformedSelectorIsStructuredFailure(t *testing.T) {
	r := Resolve(colorQuery("<div>x</div>", nil, "div[unclosed"))
	if r.Success {
		t.Fatalf("Resolve: expected failure for malformed selector, got %+v", r)
	}
}

func TestResolve_AllProperties(t *testing.T) {
	q := query.StyleQuery{
		ID:       "q_all",
		HTML:     "<div class='h'>x</div>",
		CSS:      []string{".h { color: red; font-size: 24px; }"},
		Selector: ".h",
	}
	r := Resolve(q)
	if !r.Success || r.ComputedStyles == nil {
		t.Fatalf("Resolve: %+v", r)
	}
	if r.ComputedStyles["color"] != "rgb(255, 0, 0)" {
		t.Fatalf("Resolve: color = %q", r.ComputedStyles["color"])
	}
	if r.ComputedStyles["font-size"] != "24px" {
		t.Fatalf("Resolve: font-size = %q", r.ComputedStyles["font-size"])
	}
	if r.ComputedStyles["display"] != "block" {
		t.Fatalf("Resolve: default display missing, got %q", r.ComputedStyles["display"])
	}
}

func TestResolve_UnknownPropertyFails(t *testing.T) {
	q := colorQuery("<div class='h'>x</div>", nil, ".h")
	q.Property = "grid-template-nonsense"
	r := Resolve(q)
	if r.Success {
		t.Fatalf("Resolve: expected failure for unresolved property, got %+v", r)
	}
}

func TestResolve_SelectorGroups(t *testing.T) {
	r := Resolve(colorQuery(
		"<span class='b'>x</span>",
		[]string{"h1, .b, #nope { color: navy; }"},
		".b",
	))
	if r.ComputedValue != "rgb(0, 0, 128)" {
		t.Fatalf("Resolve: got %q, want grouped selector to apply", r.ComputedValue)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	q := colorQuery("<div class='h'>x</div>", []string{".h { color: red; }"}, ".h")
	a := Resolve(q)
	b := Resolve(q)
	if a.ComputedValue != b.ComputedValue || a.Success != b.Success {
		t.Fatalf("Resolve: not idempotent: %+v vs %+v", a, b)
	}
}
