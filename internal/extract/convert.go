package extract

import (
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
)

// knownTags are the tags the converter has dedicated rules for. Any of them
// missing from the allow-list is rendered as plain text.
var knownTags = []string{
	"h1", "h2", "h3", "h4", "h5", "h6", "p", "a", "b", "strong", "em", "i",
	"img", "ul", "ol", "li", "blockquote", "code", "pre", "hr", "br",
	"del", "s", "strike", "table", "thead", "tbody", "tfoot", "tr", "th", "td",
}

var blockTags = map[string]bool{
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"p": true, "ul": true, "ol": true, "li": true, "blockquote": true,
	"pre": true, "table": true, "tr": true,
}

func newConverter(allow map[string]bool) *md.Converter {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:     "atx",
		BulletListMarker: "-",
		EmDelimiter:      "*",
		StrongDelimiter:  "**",
		CodeBlockStyle:   "fenced",
	})
	if allow["table"] {
		conv.Use(plugin.Table())
	}

	var rules []md.Rule
	if headings := allowed(allow, "h1", "h2", "h3", "h4", "h5", "h6"); len(headings) > 0 {
		rules = append(rules, md.Rule{Filter: headings, Replacement: headingRule})
	}
	if allow["p"] {
		rules = append(rules, md.Rule{Filter: []string{"p"}, Replacement: paragraphRule})
	}
	if lists := allowed(allow, "ul", "ol"); len(lists) > 0 {
		rules = append(rules, md.Rule{Filter: lists, Replacement: listRule})
	}
	if allow["li"] {
		rules = append(rules, md.Rule{Filter: []string{"li"}, Replacement: listItemRule})
	}

	var plain []string
	for _, tag := range knownTags {
		if !allow[tag] {
			plain = append(plain, tag)
		}
	}
	if len(plain) > 0 {
		rules = append(rules, md.Rule{Filter: plain, Replacement: textRule})
	}
	return conv.AddRules(rules...)
}

func allowed(allow map[string]bool, tags ...string) []string {
	var out []string
	for _, tag := range tags {
		if allow[tag] {
			out = append(out, tag)
		}
	}
	return out
}

func tagName(selec *goquery.Selection) string {
	return strings.ToLower(goquery.NodeName(selec))
}

func headingRule(content string, selec *goquery.Selection, _ *md.Options) *string {
	text := strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	if text == "" {
		return md.String("")
	}
	level, err := strconv.Atoi(strings.TrimPrefix(tagName(selec), "h"))
	if err != nil || level < 1 || level > 6 {
		level = 1
	}
	return md.String("\n\n" + strings.Repeat("#", level) + " " + text + "\n\n")
}

func paragraphRule(content string, _ *goquery.Selection, _ *md.Options) *string {
	text := strings.TrimSpace(content)
	if text == "" {
		return md.String("")
	}
	return md.String("\n\n" + text + "\n\n")
}

func listRule(content string, selec *goquery.Selection, _ *md.Options) *string {
	if strings.TrimSpace(content) == "" {
		return md.String(content)
	}
	if selec.Parent().Is("li") {
		return md.String("\n" + strings.TrimRight(content, "\n") + "\n")
	}
	return md.String("\n\n" + strings.TrimRight(content, "\n") + "\n\n")
}

func listItemRule(content string, selec *goquery.Selection, opt *md.Options) *string {
	prefix := opt.BulletListMarker + " "
	if selec.Parent().Is("ol") {
		start := 1
		if v, ok := selec.Parent().Attr("start"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				start = n
			}
		}
		prefix = strconv.Itoa(start+selec.PrevAllFiltered("li").Length()) + ". "
	}

	text := strings.TrimRight(strings.TrimLeft(content, "\n"), " \t\n")
	indent := strings.Repeat(" ", len(prefix))
	lines := strings.Split(text, "\n")
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = indent + lines[i]
		}
	}
	return md.String(prefix + strings.Join(lines, "\n") + "\n")
}

func textRule(content string, selec *goquery.Selection, _ *md.Options) *string {
	switch tag := tagName(selec); {
	case tag == "br":
		return md.String("\n")
	case tag == "hr":
		return md.String("\n\n")
	case blockTags[tag]:
		return md.String("\n" + content + "\n")
	}
	return md.String(content)
}
