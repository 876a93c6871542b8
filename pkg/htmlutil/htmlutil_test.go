package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "  2450 ", expected: "2450"},
		{input: "Carlsen,\n\t  Magnus", expected: "Carlsen, Magnus"},
		{input: "Not\u0000 rated", expected: "Not rated"},
		{input: "", expected: ""},
	}

	for _, row := range table {
		require.Equal(t, row.expected, CleanText(row.input))
	}
}

func TestSelectionText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><p> first <b>bold</b>  </p><p>second</p></div>`,
	))
	require.NoError(t, err)

	require.Equal(t, "first bold", SelectionText(doc.Find("p")))
	require.Equal(t, "", SelectionText(doc.Find("span")))
}
