package transcript

import "testing"

func TestFlushJoinsFragmentsInOrder(t *testing.T) {
	var a Aggregator
	a.Append("hel")
	a.Append("lo the")
	a.Append("re")

	text, ok := a.Flush()
	if !ok || text != "hello there" {
		t.Errorf("Flush = %q, %v; want %q, true", text, ok, "hello there")
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	var a Aggregator
	a.Append("hello")

	if _, ok := a.Flush(); !ok {
		t.Fatal("first Flush reported empty buffer")
	}
	if text, ok := a.Flush(); ok {
		t.Errorf("second Flush = %q, true; want empty", text)
	}
}

func TestFlushSkipsWhitespaceOnlyBuffer(t *testing.T) {
	var a Aggregator
	a.Append("  \n")
	if text, ok := a.Flush(); ok {
		t.Errorf("Flush = %q, true; want no utterance", text)
	}
}

func TestResetDiscardsWithoutEmitting(t *testing.T) {
	var a Aggregator
	a.Append("half a thou")
	a.Reset()
	if text, ok := a.Flush(); ok {
		t.Errorf("Flush after Reset = %q, true; want empty", text)
	}
}
