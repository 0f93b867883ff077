// Package document assembles self-contained probe documents for the style
// engine. A probe inlines the caller's markup, the stylesheets in submission
// order, and a reporting script that serializes computed styles for each
// query onto stdout as tagged single-line payloads.
//
// The reporting script emits first and schedules window.close() strictly
// afterwards, with a settle delay so the hosting process flushes its output
// before it is told to exit. The delay trades reliability against per-query
// latency; the defaults are deliberately conservative.
package document

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/styleq/query"
)

const (
	// DefaultSettleDelay is the emission-to-termination delay for a
	// single-query probe.
	DefaultSettleDelay = 500 * time.Millisecond

	// DefaultBatchSettleDelay is the delay for batch probes. Batches
	// amortize the wait across queries, so it can be shorter.
	DefaultBatchSettleDelay = 200 * time.Millisecond
)

// Build produces the probe document for a single query.
func Build(q query.StyleQuery, settle time.Duration) string {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	return assemble(q.CombinedCSS(), q.HTML, []query.StyleQuery{q}, settle)
}

// BuildBatch produces one probe document answering every query in qs.
// All queries in a batch share the same markup and stylesheets; each gets
// its own tagged payload line keyed by its ID.
func BuildBatch(qs []query.StyleQuery, settle time.Duration) string {
	if settle <= 0 {
		settle = DefaultBatchSettleDelay
	}
	if len(qs) == 0 {
		return assemble("", "", nil, settle)
	}
	return assemble(qs[0].CombinedCSS(), qs[0].HTML, qs, settle)
}

func assemble(css, html string, qs []query.StyleQuery, settle time.Duration) string {
	var script strings.Builder
	script.WriteString("window.addEventListener('load', function() {\n")
	for _, q := range qs {
		writeQueryBlock(&script, q)
	}
	fmt.Fprintf(&script, "  setTimeout(function() { window.close(); }, %d);\n", settle.Milliseconds())
	script.WriteString("});")

	var doc strings.Builder
	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<style>\n")
	doc.WriteString(css)
	doc.WriteString("\n</style>\n</head>\n<body>\n")
	doc.WriteString(html)
	doc.WriteString("\n<script>\n")
	doc.WriteString(script.String())
	doc.WriteString("\n</script>\n</body>\n</html>\n")
	return doc.String()
}

// writeQueryBlock emits the JS that resolves one query and logs its payload.
// Everything runs inside try/catch: a malformed selector must degrade to a
// structured failure payload, because a thrown exception produces no JSON at
// all and the caller would only see a parse failure.
func writeQueryBlock(w *strings.Builder, q query.StyleQuery) {
	id := jsString(q.ID)
	sel := jsString(q.Selector)

	w.WriteString("  (function() {\n")
	fmt.Fprintf(w, "    var payload = { id: %s, success: false };\n", id)
	w.WriteString("    try {\n")
	fmt.Fprintf(w, "      var el = document.querySelector(%s);\n", sel)
	w.WriteString("      if (!el) {\n")
	fmt.Fprintf(w, "        payload.error = 'no element matches selector: ' + %s;\n", sel)
	w.WriteString("      } else {\n")
	if q.PseudoElement != "" {
		fmt.Fprintf(w, "        var cs = window.getComputedStyle(el, %s);\n", jsString(q.PseudoElement))
	} else {
		w.WriteString("        var cs = window.getComputedStyle(el);\n")
	}
	if q.AllProperties() {
		w.WriteString("        var styles = {};\n")
		w.WriteString("        for (var i = 0; i < cs.length; i++) {\n")
		w.WriteString("          styles[cs[i]] = cs.getPropertyValue(cs[i]);\n")
		w.WriteString("        }\n")
		w.WriteString("        payload.success = true;\n")
		w.WriteString("        payload.computed_styles = styles;\n")
	} else {
		fmt.Fprintf(w, "        payload.computed_value = cs.getPropertyValue(%s);\n", jsString(q.Property))
		w.WriteString("        payload.success = true;\n")
	}
	w.WriteString("      }\n")
	w.WriteString("    } catch (e) {\n")
	w.WriteString("      payload.error = 'selector error: ' + e.message;\n")
	w.WriteString("    }\n")
	fmt.Fprintf(w, "    console.log(%q + JSON.stringify(payload));\n", query.ResultTag)
	w.WriteString("  })();\n")
}

// jsString renders s as a JS string literal. json.Marshal escapes <, > and &
// so the literal can never terminate the surrounding <script> element.
func jsString(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		// Marshal of a string cannot fail.
		panic("document: marshal string: " + err.Error())
	}
	return string(data)
}
