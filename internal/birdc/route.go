package birdc

import (
	"regexp"
	"strings"
)

// NextHop is one gateway of a route.
type NextHop struct {
	Peer      string `json:"peer,omitempty"`
	Interface string `json:"interface,omitempty"`
}

// Route is one entry of a "show route" reply. Empty strings mean the field
// was not present on the wire.
type Route struct {
	Prefix     string                       `json:"prefix"`
	Peer       string                       `json:"peer,omitempty"`
	Interface  string                       `json:"interface,omitempty"`
	Dest       string                       `json:"dest,omitempty"`
	Source     string                       `json:"source"`
	Time       string                       `json:"time"`
	Best       bool                         `json:"best"`
	Preference string                       `json:"preference,omitempty"`
	ASN        string                       `json:"asn,omitempty"`
	Type       string                       `json:"type,omitempty"`
	Multipath  []NextHop                    `json:"multipath,omitempty"`
	Attributes map[string]map[string]string `json:"attributes,omitempty"`
}

const (
	prefixPart  = `^(?:(?P<prefix>[0-9A-Fa-f.:]+/\d+)\s+)?`
	nexthopPart = `(?:via\s+(?P<peer>\S+)\s+on\s+(?P<iface>\S+)|dev\s+(?P<dev>\S+))`
	sourcePart  = `\[(?P<source>[^\s\]]+)\s+(?P<time>[^\s\]]+(?:\s\d{1,2}:\d{2}(?::\d{2})?(?:\.\d+)?)?)(?:\s+from\s+(?P<from>[^\s\]]+))?\]`
	trailerPart = `(?:\s+(?P<best>[*,!]))?(?:\s+[A-Z]{1,2}\d?)?(?:\s+\((?P<preference>[\w/\-?]+)\))?(?:\s+\[AS(?P<asn>\d+)[\w?]*\])?`
)

// Summary line layouts. BIRD 1.x puts the gateway on the summary line:
//
//	2a02:898::/32      via 2001:7f8:1::a500:8954:1 on eth1 [PS2 12:46] * (100) [AS8283i]
//
// BIRD 2.x names the destination kind and moves the gateway to its own line:
//
//	10.0.0.0/24          unicast [rs1_ipv4 10:03:04.485] * (100) [AS65010i]
//		via 10.123.123.10 on eth0
//
// OSPF routes carry a route type (I, IA, E1, E2) before the preference.
var (
	dialectA  = newSummaryPattern(prefixPart + nexthopPart + `\s+` + sourcePart + trailerPart)
	dialectB  = newSummaryPattern(prefixPart + `(?P<dest>unicast|blackhole|unreachable|prohibit)\s+` + sourcePart + trailerPart)
	nexthopRe = newSummaryPattern(`^` + nexthopPart)

	typeRe      = regexp.MustCompile(`^Type:\s*(\S.*)$`)
	attributeRe = regexp.MustCompile(`^(\w+)\.(\w+):\s*(.*)$`)
	pairRe      = regexp.MustCompile(`\((\w+),(\w+)\)`)
	tripleRe    = regexp.MustCompile(`\(([^,()]+), ([^,()]+), ([^,()]+)\)`)
)

// summaryPattern wraps a regexp and hands out captures by group name.
type summaryPattern struct {
	re *regexp.Regexp
}

func newSummaryPattern(expr string) summaryPattern {
	return summaryPattern{re: regexp.MustCompile(expr)}
}

// match returns the named captures of text, or nil. Groups that did not
// participate are absent from the map.
func (p summaryPattern) match(text string) map[string]string {
	idx := p.re.FindStringSubmatchIndex(text)
	if idx == nil {
		return nil
	}
	groups := make(map[string]string)
	for i, name := range p.re.SubexpNames() {
		if name == "" || idx[2*i] < 0 {
			continue
		}
		groups[name] = text[idx[2*i]:idx[2*i+1]]
	}
	return groups
}

// routeFromSummary builds a route from summary captures. The gateway from the
// dialect's own clause wins over the bracket's "from" address.
func routeFromSummary(g map[string]string) *Route {
	r := &Route{
		Prefix:     g["prefix"],
		Peer:       g["peer"],
		Interface:  g["iface"],
		Dest:       g["dest"],
		Source:     g["source"],
		Time:       g["time"],
		Best:       g["best"] != "",
		Preference: g["preference"],
		ASN:        g["asn"],
	}
	if r.Interface == "" {
		r.Interface = g["dev"]
	}
	if r.Peer == "" {
		r.Peer = g["from"]
	}
	return r
}

// mergeNexthop applies a dialect B gateway line to r.
func mergeNexthop(r *Route, g map[string]string) {
	if g["peer"] != "" {
		r.Peer = g["peer"]
	}
	if g["iface"] != "" {
		r.Interface = g["iface"]
	} else if g["dev"] != "" {
		r.Interface = g["dev"]
	}
}

func nexthopFrom(g map[string]string) NextHop {
	nh := NextHop{Peer: g["peer"], Interface: g["iface"]}
	if nh.Interface == "" {
		nh.Interface = g["dev"]
	}
	return nh
}

// DecodeRoutes decodes a "show route" reply in either summary dialect.
// With detail set, code 1012 attribute lines are merged into each route's
// Attributes; otherwise they are skipped.
//
//	0001 BIRD 1.3.3 ready.
//	1007-2a02:898::/32      via 2001:7f8:1::a500:8954:1 on eth1 [PS2 12:46] * (100) [AS8283i]
//	1008-   Type: BGP unicast univ
//	1012-   BGP.origin: IGP
//	    BGP.as_path: 8954 8283
//	    BGP.community: (8954,620)
//	0000
func DecodeRoutes(reply string, detail bool) ([]Route, error) {
	lines := NewLines(reply)
	routes := []Route{}

	var cur *Route
	var lastPrefix string
	seal := func() {
		if cur != nil {
			routes = append(routes, *cur)
			cur = nil
		}
	}

	code := CodeRouteList
	for {
		raw, ok := lines.Next()
		if !ok {
			break
		}
		line := ParseLine(raw)
		if line.HasCode {
			code = line.Code
		}

		switch {
		case code == CodeRouteList:
			if line.Text == "" || strings.HasPrefix(line.Text, "Table") {
				seal()
				continue
			}

			r, err := decodeSummary(line.Text, lines)
			if err != nil {
				return nil, err
			}
			if r == nil {
				// An extra gateway line of a multipath route.
				if g := nexthopRe.match(line.Text); g != nil && !line.HasCode && cur != nil {
					cur.Multipath = append(cur.Multipath, nexthopFrom(g))
					continue
				}
				return nil, structural("routes", line.Text, "summary line matches no known layout")
			}

			seal()
			if r.Prefix == "" {
				if lastPrefix == "" {
					return nil, structural("routes", line.Text, "first route has no prefix")
				}
				r.Prefix = lastPrefix
			} else {
				lastPrefix = r.Prefix
			}
			cur = r

		case code == CodeRouteDetails:
			if cur == nil {
				return nil, structural("routes", line.Text, "route type outside of a route")
			}
			m := typeRe.FindStringSubmatch(line.Text)
			if m == nil {
				return nil, structural("routes", line.Text, "can not parse type line")
			}
			cur.Type = m[1]

		case code == CodeRouteAttributes:
			if !detail || cur == nil {
				continue
			}
			proto, attr, value, err := decodeAttribute(line.Text)
			if err != nil {
				return nil, err
			}
			if cur.Attributes == nil {
				cur.Attributes = make(map[string]map[string]string)
			}
			if cur.Attributes[proto] == nil {
				cur.Attributes[proto] = make(map[string]string)
			}
			cur.Attributes[proto][attr] = value

		case code == CodeOK:
			seal()
			return routes, nil

		case code == CodeNetworkNotFound:
			return []Route{}, nil

		case IsError(code):
			return nil, &ReplyError{Code: code, Message: line.Text}
		}
	}

	seal()
	return routes, nil
}

// decodeSummary matches a summary line against dialect A, then dialect B.
// For dialect B the gateway line that follows is consumed and merged. It
// returns nil, nil when neither layout matches.
func decodeSummary(text string, lines *Lines) (*Route, error) {
	if g := dialectA.match(text); g != nil {
		return routeFromSummary(g), nil
	}

	g := dialectB.match(text)
	if g == nil {
		return nil, nil
	}
	r := routeFromSummary(g)

	if raw, ok := lines.Peek(); ok {
		next := ParseLine(raw)
		if !next.HasCode || next.Code == CodeRouteList {
			if nh := nexthopRe.match(next.Text); nh != nil && dialectA.match(next.Text) == nil {
				lines.Next()
				mergeNexthop(r, nh)
			}
		}
	}
	return r, nil
}

// decodeAttribute parses "BGP.community: (8954,620) (8954,220)".
func decodeAttribute(text string) (proto, attr, value string, err error) {
	m := attributeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", "", structural("routes", text, "can not parse route attribute")
	}
	proto, attr, value = m[1], m[2], m[3]

	switch attr {
	case "community":
		// (8954,220) (8954,620) -> 8954:220 8954:620
		value = pairRe.ReplaceAllString(value, "$1:$2")
	case "ext_community", "large_community":
		// (rt, 1, 199524) -> rt:1:199524
		value = tripleRe.ReplaceAllString(value, "$1:$2:$3")
	}
	return proto, attr, value, nil
}
