package render

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"

	"github.com/pagecraft/pagecraft/internal/page"
)

// textTags are the elements a Text component may render as
var textTags = map[string]bool{"h1": true, "h2": true, "h3": true, "p": true, "span": true}

// unitless style properties keep bare numbers
var unitless = map[string]bool{
	"flex": true, "flexGrow": true, "flexShrink": true, "fontWeight": true,
	"lineHeight": true, "opacity": true, "order": true, "zIndex": true,
}

// placeholderFields are shown by a Form without configured fields
var placeholderFields = []Field{
	{Name: "name", Label: "Name", Type: "text"},
	{Name: "email", Label: "Email", Type: "email"},
}

// WriteHTML writes the markup of a view tree. Interactive elements carry
// data-component-id and data-action attributes the client script binds to.
func WriteHTML(w io.Writer, v *View) error {
	bw := bufio.NewWriter(w)
	writeView(bw, v)
	return bw.Flush()
}

func writeView(w *bufio.Writer, v *View) {
	if v == nil {
		return
	}
	if v.Error != "" && v.Type != page.TypeTable {
		fmt.Fprintf(w, `<div class="pc-error" data-component-id="%s">%s</div>`, esc(v.ID), esc(v.Error))
		return
	}

	switch v.Type {
	case page.TypeContainer:
		open(w, "div", v, "pc-container")
		writeChildren(w, v)
		w.WriteString("</div>")

	case page.TypeText:
		tag := v.Props.Get("tag").StringOr("p")
		if !textTags[tag] {
			tag = "p"
		}
		content := v.Props.Get("content")
		text := "Text Block"
		if !content.IsNil() {
			text = content.Text()
		}
		open(w, tag, v, "pc-text")
		w.WriteString(esc(text))
		fmt.Fprintf(w, "</%s>", tag)

	case page.TypeButton:
		label := v.Props.Get("label")
		text := "Button"
		if !label.IsNil() {
			text = label.Text()
		}
		w.WriteString(`<button type="button"`)
		attrs(w, v, "pc-button")
		if v.Clickable {
			w.WriteString(` data-action="click"`)
		}
		w.WriteString(">")
		w.WriteString(esc(text))
		w.WriteString("</button>")

	case page.TypeTable:
		writeTable(w, v)

	case page.TypeForm:
		writeForm(w, v)

	case page.TypeModal:
		w.WriteString(`<div class="pc-modal-backdrop">`)
		open(w, "div", v, "pc-modal")
		fmt.Fprintf(w, `<button type="button" class="pc-modal-close" data-action="close-modal" data-component-id="%s">&times;</button>`, esc(v.ID))
		writeChildren(w, v)
		w.WriteString("</div></div>")
	}
}

func writeChildren(w *bufio.Writer, v *View) {
	for _, child := range v.Children {
		writeView(w, child)
	}
}

func writeTable(w *bufio.Writer, v *View) {
	open(w, "div", v, "pc-table")
	if v.Error != "" {
		fmt.Fprintf(w, `<div class="pc-error">%s</div></div>`, esc(v.Error))
		return
	}
	cols := v.Columns()
	w.WriteString("<table><thead><tr>")
	for _, c := range cols {
		fmt.Fprintf(w, "<th>%s</th>", esc(c.Header))
	}
	w.WriteString("</tr></thead><tbody>")
	if len(v.Rows) == 0 {
		fmt.Fprintf(w, `<tr><td colspan="%d" class="pc-empty">No data</td></tr>`, max(len(cols), 1))
	}
	for _, row := range v.Rows {
		w.WriteString("<tr>")
		for _, c := range cols {
			fmt.Fprintf(w, "<td>%s</td>", esc(row.Get(c.Field).Text()))
		}
		w.WriteString("</tr>")
	}
	w.WriteString("</tbody></table></div>")
}

func writeForm(w *bufio.Writer, v *View) {
	w.WriteString("<form")
	attrs(w, v, "pc-form")
	w.WriteString(` data-action="submit">`)
	if table := v.Props.Get("tableName").StringOr(""); table != "" {
		fmt.Fprintf(w, `<div class="pc-form-title">%s Form</div>`, esc(table))
	}
	fields := v.Fields()
	if len(fields) == 0 {
		fields = placeholderFields
	}
	for _, f := range fields {
		fmt.Fprintf(w, `<label>%s<input type="%s" name="%s" value="%s" data-action="input"></label>`,
			esc(f.Label), esc(inputType(f.Type)), esc(f.Name), esc(v.Values.Get(f.Name).Text()))
	}
	writeChildren(w, v)
	w.WriteString(`<button type="submit">Submit</button></form>`)
}

func inputType(fieldType string) string {
	switch fieldType {
	case "number":
		return "number"
	case "boolean":
		return "checkbox"
	case "date":
		return "date"
	case "datetime":
		return "datetime-local"
	case "email":
		return "email"
	default:
		return "text"
	}
}

func open(w *bufio.Writer, tag string, v *View, class string) {
	w.WriteString("<" + tag)
	attrs(w, v, class)
	if v.Clickable && v.Type != page.TypeForm {
		w.WriteString(` data-action="click"`)
	}
	w.WriteString(">")
}

func attrs(w *bufio.Writer, v *View, class string) {
	fmt.Fprintf(w, ` class="%s" data-component-id="%s"`, class, esc(v.ID))
	if css := StyleAttr(v.Style); css != "" {
		fmt.Fprintf(w, ` style="%s"`, esc(css))
	}
}

// unsafeCSS are fragments that would let a bound value end its declaration
// or load external content
var unsafeCSS = []string{";", "{", "}", "<", "\\", "/*", "url(", "expression(", "@import", "javascript:"}

// safeCSSValue reports whether value stays inside a single declaration
func safeCSSValue(value string) bool {
	lower := strings.ToLower(value)
	for _, frag := range unsafeCSS {
		if strings.Contains(lower, frag) {
			return false
		}
	}
	return true
}

func validCSSProperty(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && r != '-' {
			return false
		}
	}
	return true
}

// StyleAttr converts a style map into an inline CSS declaration list with
// properties in sorted order. Properties that are not plain names and values
// that could break out of their declaration are dropped.
func StyleAttr(style page.Map) string {
	var b strings.Builder
	for _, key := range style.Keys() {
		v := style[key]
		if v.IsNil() || !validCSSProperty(key) {
			continue
		}
		value := v.Text()
		if !safeCSSValue(value) {
			continue
		}
		if n, ok := v.AsNumber(); ok && n != 0 && !unitless[key] {
			value += "px"
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(kebab(key))
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

func kebab(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}
