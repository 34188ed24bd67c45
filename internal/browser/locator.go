// ABOUTME: Typed DOM locators parsed from KIND@@identifier strings
// ABOUTME: Closed set of kinds resolved at parse time, not at lookup time

package browser

import (
	"fmt"
	"strings"
)

// Kind is the closed set of ways a Locator can reference an element.
type Kind string

const (
	ByID      Kind = "ID"
	ByName    Kind = "NAME"
	ByClass   Kind = "CLASS_NAME"
	ByCSS     Kind = "CSS_SELECTOR"
	ByTagText Kind = "TAG_NAME" // matches visible text inside pre/body elements
)

// Locator is a typed reference to a single DOM element or a piece of visible
// text. The zero value is invalid; use Parse or MustParse.
type Locator struct {
	Kind       Kind
	Identifier string
}

// Parse converts a KIND@@identifier string into a Locator. The kind must be
// one of the closed set; anything else is a configuration error.
func Parse(s string) (Locator, error) {
	kind, identifier, found := strings.Cut(s, "@@")
	if !found {
		return Locator{}, fmt.Errorf("locator %q: missing @@ separator", s)
	}
	if identifier == "" {
		return Locator{}, fmt.Errorf("locator %q: empty identifier", s)
	}

	switch Kind(kind) {
	case ByID, ByName, ByClass, ByCSS, ByTagText:
		return Locator{Kind: Kind(kind), Identifier: identifier}, nil
	default:
		return Locator{}, fmt.Errorf("locator %q: unknown kind %q", s, kind)
	}
}

// MustParse is Parse for compile-time-constant locators. It panics on error
// and is only used for the built-in target tables.
func MustParse(s string) Locator {
	loc, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return loc
}

// Selector returns the CSS selector equivalent of the locator. For ByTagText
// it returns the container elements to scan; callers must additionally match
// Identifier against their text.
func (l Locator) Selector() string {
	switch l.Kind {
	case ByID:
		return "#" + l.Identifier
	case ByName:
		return fmt.Sprintf(`[name=%q]`, l.Identifier)
	case ByClass:
		// Identifiers use the dotted compound form, e.g.
		// "alert.alert-danger.margin-top-10". Spaces are tolerated.
		cls := strings.ReplaceAll(l.Identifier, " ", ".")
		return "." + strings.TrimPrefix(cls, ".")
	case ByCSS:
		return l.Identifier
	case ByTagText:
		return "pre, body"
	default:
		return l.Identifier
	}
}

// MatchesText reports whether the locator matches on element text rather
// than on selector presence.
func (l Locator) MatchesText() bool {
	return l.Kind == ByTagText
}

func (l Locator) String() string {
	return string(l.Kind) + "@@" + l.Identifier
}
