package main

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHostListSetSplitsAndTrims(t *testing.T) {
	c := qt.New(t)

	var h hostList
	err := h.Set(" *.example.com, internal.test ,,corp.local")

	c.Assert(err, qt.IsNil)
	c.Assert([]string(h), qt.DeepEquals, []string{"*.example.com", "internal.test", "corp.local"})
}

func TestHostListStringJoinsWithComma(t *testing.T) {
	c := qt.New(t)

	h := hostList{"a.example.com", "b.example.com"}
	c.Assert(h.String(), qt.Equals, "a.example.com,b.example.com")
}
