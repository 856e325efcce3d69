package birdc

import (
	"strings"
	"time"
)

// Status is the decoded reply of "show status".
type Status struct {
	Version             string    `json:"version"`
	RouterID            string    `json:"router_id"`
	Hostname            string    `json:"hostname,omitempty"`
	LastReboot          time.Time `json:"last_reboot"`
	LastReconfiguration time.Time `json:"last_reconfiguration"`
}

// DecodeStatus decodes a "show status" reply:
//
//	0001 BIRD 2.0.8 ready.
//	1000-BIRD 2.0.8
//	1011-Router ID is 195.69.146.34
//	 Hostname is bird2-router
//	 Current server time is 2012-01-10 10:24:37
//	 Last reboot on 2012-01-03 12:46:40
//	 Last reconfiguration on 2012-01-03 12:46:40
//	0013 Daemon is up and running
func DecodeStatus(reply string, now time.Time) (*Status, error) {
	lines := NewLines(reply)
	st := &Status{}

	for {
		raw, ok := lines.Next()
		if !ok {
			break
		}
		line := ParseLine(raw)
		if !line.HasCode || IsIgnored(line.Code) {
			continue
		}

		switch line.Code {
		case CodeVersion:
			fields := strings.Fields(line.Text)
			if len(fields) < 2 {
				return nil, structural("status", line.Text, "version line has no version")
			}
			st.Version = fields[1]

		case CodeStatus:
			st.RouterID = afterThirdWord(line.Text)
			if err := decodeStatusBlock(lines, st, now); err != nil {
				return nil, err
			}
		}
	}

	return st, nil
}

// decodeStatusBlock consumes the continuation lines that follow the router ID.
func decodeStatusBlock(lines *Lines, st *Status, now time.Time) error {
	next := func(what string) (string, error) {
		raw, ok := lines.Next()
		if !ok {
			return "", structural("status", "", "reply ends before "+what+" line")
		}
		return ParseLine(raw).Text, nil
	}

	text, err := next("server time")
	if err != nil {
		return err
	}
	if strings.HasPrefix(text, "Hostname is") {
		if _, host, found := strings.Cut(text, " is "); found {
			st.Hostname = strings.TrimSpace(host)
		}
		if _, err := next("server time"); err != nil {
			return err
		}
	}

	text, err = next("last reboot")
	if err != nil {
		return err
	}
	if st.LastReboot, err = ResolveTime(afterThirdWord(text), now); err != nil {
		return err
	}

	text, err = next("last reconfiguration")
	if err != nil {
		return err
	}
	if st.LastReconfiguration, err = ResolveTime(afterThirdWord(text), now); err != nil {
		return err
	}
	return nil
}

// afterThirdWord returns what follows the first three space separated words:
// "Router ID is 1.2.3.4" -> "1.2.3.4", "Last reboot on 2012-01-03 12:46:40" ->
// "2012-01-03 12:46:40".
func afterThirdWord(text string) string {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 4)
	return parts[len(parts)-1]
}
