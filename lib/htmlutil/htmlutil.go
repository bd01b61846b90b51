package htmlutil

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

func ParseDocument(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// InputValue returns the value attribute of the first <input> element
// with the given name attribute, or "" when no such element exists.
func InputValue(doc *goquery.Document, name string) string {
	return doc.Find(fmt.Sprintf("input[name=%q]", name)).AttrOr("value", "")
}

// HiddenInputs collects the named hidden form fields out of a document.
// Fields that are missing entirely are absent from the returned map,
// which lets callers distinguish "not rendered" from "rendered empty".
func HiddenInputs(doc *goquery.Document, names ...string) map[string]string {
	values := map[string]string{}
	for _, name := range names {
		sel := doc.Find(fmt.Sprintf("input[name=%q]", name))
		if sel.Length() == 0 {
			continue
		}
		values[name] = sel.AttrOr("value", "")
	}
	return values
}
