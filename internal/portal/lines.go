package portal

import (
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/famline/famline/internal/usage"
)

// tariffSettingsPrefix is the path prefix of the per-line settings links the
// dashboard renders for every line on the plan. The numeric path segment is
// the portal-internal line ID and the anchor text is the phone number.
const tariffSettingsPrefix = "/nastaveni-tarifu-a-sluzeb/"

// parseLines extracts the family plan's lines from dashboard markup, in
// document order. The portal lists the account owner's line first, so the
// first match is tagged primary. Duplicated anchors for the same number
// (menus, footers) collapse to the first occurrence.
func parseLines(r io.Reader) ([]usage.Line, error) {
	z := html.NewTokenizer(r)

	var lines []usage.Line
	seen := make(map[string]bool)

	// suspect is the line ID of the anchor currently open, cleared on any
	// end tag the same way the anchor text window closes.
	var suspect string
	var suspectLabel string

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return lines, nil
			}
			return nil, z.Err()

		case html.StartTagToken:
			suspect = ""
			suspectLabel = ""
			tok := z.Token()
			if tok.Data != "a" {
				continue
			}
			for _, attr := range tok.Attr {
				switch attr.Key {
				case "href":
					if id, ok := lineIDFromHref(attr.Val); ok {
						suspect = id
					}
				case "title":
					suspectLabel = attr.Val
				}
			}

		case html.EndTagToken:
			suspect = ""
			suspectLabel = ""

		case html.TextToken:
			if suspect == "" {
				continue
			}
			number := strings.TrimSpace(string(z.Text()))
			if !isDigits(number) || seen[number] {
				suspect = ""
				continue
			}
			seen[number] = true

			line := usage.Line{
				Number: number,
				ID:     suspect,
				Label:  suspectLabel,
				Type:   usage.LineSecondary,
			}
			if line.Label == "" {
				line.Label = number
			}
			if len(lines) == 0 {
				line.Type = usage.LinePrimary
			}
			lines = append(lines, line)
			suspect = ""
		}
	}
}

// lineIDFromHref returns the numeric line ID from a tariff settings href.
func lineIDFromHref(href string) (string, bool) {
	if !strings.HasPrefix(href, tariffSettingsPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(href, tariffSettingsPrefix)
	id, _, _ := strings.Cut(rest, "/")
	if !isDigits(id) {
		return "", false
	}
	return id, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
