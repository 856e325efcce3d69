package birdc

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ChangeCounters is one row of the "Route change stats" table. A nil cell
// was printed as "---" by the daemon.
type ChangeCounters struct {
	Received *int64 `json:"received,omitempty"`
	Rejected *int64 `json:"rejected,omitempty"`
	Filtered *int64 `json:"filtered,omitempty"`
	Ignored  *int64 `json:"ignored,omitempty"`
	Accepted *int64 `json:"accepted,omitempty"`
}

// ChangeStats holds the four rows of the "Route change stats" table.
type ChangeStats struct {
	ImportUpdates   ChangeCounters `json:"import_updates"`
	ImportWithdraws ChangeCounters `json:"import_withdraws"`
	ExportUpdates   ChangeCounters `json:"export_updates"`
	ExportWithdraws ChangeCounters `json:"export_withdraws"`
}

// Flatten returns the present cells keyed as import_updates_received and so
// on. Placeholder cells have no key.
func (s ChangeStats) Flatten() map[string]int64 {
	out := make(map[string]int64)
	rows := []struct {
		name string
		c    ChangeCounters
	}{
		{"import_updates", s.ImportUpdates},
		{"import_withdraws", s.ImportWithdraws},
		{"export_updates", s.ExportUpdates},
		{"export_withdraws", s.ExportWithdraws},
	}
	for _, row := range rows {
		for _, cell := range row.c.cells() {
			if *cell.value != nil {
				out[row.name+"_"+cell.name] = **cell.value
			}
		}
	}
	return out
}

type counterCell struct {
	name  string
	value **int64
}

func (c *ChangeCounters) cells() []counterCell {
	return []counterCell{
		{"received", &c.Received},
		{"rejected", &c.Rejected},
		{"filtered", &c.Filtered},
		{"ignored", &c.Ignored},
		{"accepted", &c.Accepted},
	}
}

// PeerSummary is a "show protocols" list line.
type PeerSummary struct {
	Name       string    `json:"name"`
	Protocol   string    `json:"protocol"`
	LastChange time.Time `json:"last_change"`
	State      *string   `json:"state,omitempty"`
	Up         *bool     `json:"up,omitempty"`
}

// Peer is a BGP session: its summary line merged with the detail block, when
// one was requested. Empty strings are labels the block did not contain.
type Peer struct {
	PeerSummary

	Description    string `json:"description,omitempty"`
	RouterID       string `json:"router_id,omitempty"`
	Address        string `json:"address,omitempty"`
	ASN            string `json:"asn,omitempty"`
	Source         string `json:"source,omitempty"`
	Preference     string `json:"preference,omitempty"`
	InputFilter    string `json:"input_filter,omitempty"`
	OutputFilter   string `json:"output_filter,omitempty"`
	RouteLimit     string `json:"route_limit,omitempty"`
	HoldTimer      string `json:"hold_timer,omitempty"`
	KeepaliveTimer string `json:"keepalive_timer,omitempty"`
	BGPState       string `json:"bgp_state,omitempty"`
	LastError      string `json:"last_error,omitempty"`

	RoutesImported  int64 `json:"routes_imported"`
	RoutesExported  int64 `json:"routes_exported"`
	RoutesFiltered  int64 `json:"routes_filtered"`
	RoutesPreferred int64 `json:"routes_preferred"`

	ChangeStats ChangeStats `json:"change_stats"`
}

// IsUp reports whether the session is established.
func (p *Peer) IsUp() bool {
	return p.Up != nil && *p.Up
}

// StateString returns the session state, or "" when the line carried none.
func (p *Peer) StateString() string {
	if p.State == nil {
		return ""
	}
	return *p.State
}

var (
	routesImportedRe  = regexp.MustCompile(`(\d+) imported`)
	routesExportedRe  = regexp.MustCompile(`(\d+) exported`)
	routesFilteredRe  = regexp.MustCompile(`(\d+) filtered`)
	routesPreferredRe = regexp.MustCompile(`(\d+) preferred`)
)

// scalarLabels maps lower-cased detail labels to the Peer field they fill.
var scalarLabels = map[string]func(*Peer) *string{
	"description":      func(p *Peer) *string { return &p.Description },
	"neighbor id":      func(p *Peer) *string { return &p.RouterID },
	"neighbor address": func(p *Peer) *string { return &p.Address },
	"neighbor as":      func(p *Peer) *string { return &p.ASN },
	"source address":   func(p *Peer) *string { return &p.Source },
	"preference":       func(p *Peer) *string { return &p.Preference },
	"input filter":     func(p *Peer) *string { return &p.InputFilter },
	"output filter":    func(p *Peer) *string { return &p.OutputFilter },
	"route limit":      func(p *Peer) *string { return &p.RouteLimit },
	"hold timer":       func(p *Peer) *string { return &p.HoldTimer },
	"keepalive timer":  func(p *Peer) *string { return &p.KeepaliveTimer },
	"bgp state":        func(p *Peer) *string { return &p.BGPState },
	"last error":       func(p *Peer) *string { return &p.LastError },
}

var changeRows = map[string]func(*ChangeStats) *ChangeCounters{
	"import updates":   func(s *ChangeStats) *ChangeCounters { return &s.ImportUpdates },
	"import withdraws": func(s *ChangeStats) *ChangeCounters { return &s.ImportWithdraws },
	"export updates":   func(s *ChangeStats) *ChangeCounters { return &s.ExportUpdates },
	"export withdraws": func(s *ChangeStats) *ChangeCounters { return &s.ExportWithdraws },
}

// DecodePeers decodes a "show protocols" reply into BGP peers. Other
// protocols are skipped. With detail set, each summary line is held until
// its 1006 block arrives; without it, summaries are returned as they are.
// A BGP summary whose block never arrives is returned on its own.
//
//	1002-PS1      BGP      T_PS1    start  Jun13       Passive
//	1006-  Description:    Peering AS8954 - InTouch
//	  Routes:         24 imported, 23 exported, 0 preferred
//	  ...
//
//	0000
func DecodePeers(reply string, detail bool, now time.Time) ([]Peer, error) {
	lines := NewLines(reply)
	peers := []Peer{}
	var pending *PeerSummary

	// The daemon prints a code only when it changes; uncoded lines continue
	// the previous one.
	code := -1
	for {
		raw, ok := lines.Next()
		if !ok {
			break
		}
		line := ParseLine(raw)
		if line.HasCode {
			code = line.Code
		}
		if line.Text == "" && !line.HasCode {
			continue
		}

		switch {
		case code == CodeNoProtocolsMatch:
			return []Peer{}, nil

		case IsError(code):
			return nil, &ReplyError{Code: code, Message: line.Text}

		case IsIgnored(code):
			continue

		case code == CodeProtocolList:
			summary, err := decodePeerSummary(line.Text, now)
			if err != nil {
				return nil, err
			}
			if pending != nil {
				// previous peer had no detail block
				peers = append(peers, Peer{PeerSummary: *pending})
				pending = nil
			}
			if summary.Protocol != "BGP" {
				pending = nil
				continue
			}
			if !detail {
				peers = append(peers, Peer{PeerSummary: *summary})
				continue
			}
			pending = summary

		case code == CodeProtocolDetails && detail:
			if pending == nil {
				// detail of a non-BGP protocol
				continue
			}
			block, err := readDetailBlock(line.Text, lines)
			if err != nil {
				return nil, err
			}
			peer, err := decodePeerDetail(block)
			if err != nil {
				return nil, err
			}
			peer.PeerSummary = *pending
			peers = append(peers, *peer)
			pending = nil
		}
	}
	if pending != nil {
		peers = append(peers, Peer{PeerSummary: *pending})
	}

	return peers, nil
}

// decodePeerSummary parses a list line:
//
//	PS1      BGP      T_PS1    start  Jun13       Passive
//	bgp1     BGP      ---      up     2024-01-10 10:03:04  Established
//
// Newer daemons print a time column after the date; the state then moves
// one column right. A line one column short has no state.
func decodePeerSummary(text string, now time.Time) (*PeerSummary, error) {
	fields := strings.Fields(text)
	if len(fields) < 5 {
		return nil, structural("peers", text, "protocol line has too few columns")
	}

	s := &PeerSummary{Name: fields[0], Protocol: fields[1]}
	if s.Protocol != "BGP" {
		return s, nil
	}

	stateIdx := 5
	since := fields[4]
	if len(fields) > 5 && strings.Contains(fields[5], ":") {
		stateIdx = 6
		if t, err := ResolveTime(since+" "+fields[5], now); err == nil {
			s.LastChange = t
			since = ""
		}
	}
	if since != "" {
		t, err := ResolveTime(since, now)
		if err != nil {
			return nil, err
		}
		s.LastChange = t
	}

	if len(fields) > stateIdx {
		state := fields[stateIdx]
		up := strings.EqualFold(state, "established")
		s.State = &state
		s.Up = &up
	}
	return s, nil
}

// readDetailBlock collects the cleaned lines of a 1006 block, starting with
// first, up to the blank line that ends it. A line carrying another reply
// code also ends the block and is left unread.
func readDetailBlock(first string, lines *Lines) ([]string, error) {
	block := []string{first}
	for {
		raw, ok := lines.Peek()
		if !ok {
			return nil, structural("peers", "", "reply ends inside a protocol detail block")
		}
		line := ParseLine(raw)
		if line.HasCode && line.Code != CodeProtocolDetails {
			return block, nil
		}
		lines.Next()
		if line.Text == "" {
			return block, nil
		}
		block = append(block, line.Text)
	}
}

// decodePeerDetail parses "label: value" lines of a detail block. Lines
// without a colon (channel headers) are skipped.
func decodePeerDetail(block []string) (*Peer, error) {
	p := &Peer{}

	for _, line := range block {
		label, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		label = strings.ToLower(strings.TrimSpace(label))
		value = strings.TrimSpace(value)

		if label == "routes" {
			p.RoutesImported = firstCount(routesImportedRe, value)
			p.RoutesExported = firstCount(routesExportedRe, value)
			p.RoutesFiltered = firstCount(routesFilteredRe, value)
			p.RoutesPreferred = firstCount(routesPreferredRe, value)
		}

		if row, ok := changeRows[label]; ok {
			if err := decodeChangeRow(row(&p.ChangeStats), line, value); err != nil {
				return nil, err
			}
		}

		if field, ok := scalarLabels[label]; ok {
			*field(p) = value
		}
	}

	return p, nil
}

// decodeChangeRow fills one stats row from its five columns.
func decodeChangeRow(c *ChangeCounters, line, value string) error {
	cols := strings.Fields(value)
	cells := c.cells()
	if len(cols) != len(cells) {
		return structural("peers", line, "route change stats row needs five columns")
	}
	for i, col := range cols {
		if col == "---" {
			continue
		}
		n, err := strconv.ParseInt(col, 10, 64)
		if err != nil {
			return structural("peers", line, "route change stats cell is not a number")
		}
		*cells[i].value = &n
	}
	return nil
}

func firstCount(re *regexp.Regexp, value string) int64 {
	m := re.FindStringSubmatch(value)
	if m == nil {
		return 0
	}
	n, _ := strconv.ParseInt(m[1], 10, 64)
	return n
}
