package birdc

import "strings"

const readingConfigPhrase = "Reading configuration from"

// ConfigureResult is the outcome of a configure-family command. A daemon-side
// failure is data: OK is false and Message holds the daemon's text.
type ConfigureResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// ClassifyConfigure scans a configure reply up to its first terminal code:
//
//	0001 BIRD 1.4.5 ready.
//	0002-Reading configuration from /etc/bird/bird.conf
//	8002 /etc/bird/bird.conf, line 3: syntax error
//
// It also returns the configuration path announced by a code 2 line, or ""
// when the reply names none.
func ClassifyConfigure(reply string) (ConfigureResult, string, error) {
	lines := NewLines(reply)
	var configFile string

	for {
		raw, ok := lines.Next()
		if !ok {
			break
		}
		line := ParseLine(raw)
		if !line.HasCode {
			continue
		}

		switch {
		case line.Code == CodeReadingConfig:
			if configFile == "" && strings.Contains(line.Text, readingConfigPhrase) {
				if fields := strings.Fields(line.Text); len(fields) > 3 {
					configFile = fields[3]
				}
			}
		case IsError(line.Code):
			return ConfigureResult{OK: false, Message: line.Text}, configFile, nil
		case IsSuccess(line.Code):
			return ConfigureResult{OK: true}, configFile, nil
		}
	}

	return ConfigureResult{}, configFile, structural("configure", "", "no terminal code found")
}
