package browse

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Render writes the current view as plain text.
func Render(w io.Writer, st State) error {
	switch st.View {
	case ViewArticleList:
		return renderList(w, st)
	case ViewSingleArticle:
		return renderArticle(w, st)
	default:
		return renderArticles(w, st)
	}
}

func renderArticles(w io.Writer, st State) error {
	var b strings.Builder
	header(&b, st, len(st.Articles))
	for _, a := range st.Articles {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n", a.ID, a.Title, a.Domain)
		for _, card := range a.Cards {
			fmt.Fprintf(&b, "  > %s\n", card)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderList(w io.Writer, st State) error {
	var b strings.Builder
	header(&b, st, len(st.Summaries))
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"ID", "Title", "Domain", "Highlights"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, s := range st.Summaries {
		table.Append([]string{strconv.FormatInt(s.ID, 10), s.Title, s.Domain, strconv.Itoa(s.Highlights)})
	}
	table.Render()
	_, err := io.WriteString(w, b.String())
	return err
}

func renderArticle(w io.Writer, st State) error {
	a := st.Current
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n%s\n", a.Title, a.Domain, a.URL)
	for i, card := range a.Cards {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, card)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func header(b *strings.Builder, st State, n int) {
	if st.Query == "" {
		fmt.Fprintf(b, "%d articles\n", n)
		return
	}
	fmt.Fprintf(b, "%d articles matching %q\n", n, st.Query)
}
