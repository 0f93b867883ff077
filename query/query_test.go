package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestEncodeLine_RoundTrip(t *testing.T) {
	orig := StyleResult{
		ID:            "q_1",
		Success:       true,
		ComputedValue: "rgb(255, 0, 0)",
	}
	line, err := orig.EncodeLine()
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	if !strings.HasPrefix(line, ResultTag) {
		t.Fatalf("EncodeLine: missing tag prefix in %q", line)
	}

	got, err := DecodeResult(strings.TrimPrefix(line, ResultTag))
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if !reflect.DeepEqual(got, orig) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, orig)
	}
}

func TestEncodeLine_RoundTripAllStyles(t *testing.T) {
	orig := StyleResult{
		ID:      "q_2",
		Success: true,
		ComputedStyles: map[string]string{
			"color":     "rgb(0, 0, 0)",
			"font-size": "16px",
		},
	}
	line, err := orig.EncodeLine()
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	got, err := DecodeResult(strings.TrimPrefix(line, ResultTag))
	if err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if !reflect.DeepEqual(got, orig) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, orig)
	}
}

func TestDecodeResult_TrailingTerminator(t *testing.T) {
	for _, payload := range []string{
		`{"id":"q_3","success":true,"computed_value":"16px"}`,
		`{"id":"q_3","success":true,"computed_value":"16px"};`,
		`  {"id":"q_3","success":true,"computed_value":"16px"}` + "\r",
	} {
		got, err := DecodeResult(payload)
		if err != nil {
			t.Fatalf("DecodeResult(%q): %v", payload, err)
		}
		if got.ID != "q_3" || got.ComputedValue != "16px" {
			t.Fatalf("DecodeResult(%q): got %+v", payload, got)
		}
	}
}

func TestDecodeResult_Empty(t *testing.T) {
	if _, err := DecodeResult("   \t "); err == nil {
		t.Fatal("DecodeResult: expected error on whitespace-only payload")
	}
}

func TestDecodeResult_MissingID(t *testing.T) {
	if _, err := DecodeResult(`{"success":true}`); err == nil {
		t.Fatal("DecodeResult: expected error on payload without id")
	}
}

func TestCombinedCSS_Order(t *testing.T) {
	q := StyleQuery{CSS: []string{".a{color:red}", ".a{color:blue}"}}
	want := ".a{color:red}\n.a{color:blue}"
	if got := q.CombinedCSS(); got != want {
		t.Fatalf("CombinedCSS: got %q want %q", got, want)
	}
}
