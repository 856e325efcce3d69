// Package birdc decodes replies read from the BIRD control socket.
//
// Every reply line starts with a four digit code (1007-, 0000 ) or is a
// continuation of the previous coded line. The decoders in this package take
// a complete reply string and return structured records; they do no I/O and
// keep no state between calls.
package birdc

import (
	"regexp"
	"strconv"
	"strings"
)

// Reply codes referenced by the decoders.
// See doc/reply_codes in the BIRD source tree.
const (
	CodeOK               = 0
	CodeWelcome          = 1
	CodeReadingConfig    = 2
	CodeStatusReport     = 13
	CodeVersion          = 1000
	CodeProtocolList     = 1002
	CodeProtocolDetails  = 1006
	CodeRouteList        = 1007
	CodeRouteDetails     = 1008
	CodeStatus           = 1011
	CodeRouteAttributes  = 1012
	CodeNetworkNotFound  = 8001
	CodeNoProtocolsMatch = 8003
)

var (
	ignoredCodes = codeSet(0, 1, 13, 2002, 9001)
	errorCodes   = codeSet(13, 19, 8001, 8002, 8003, 9000, 9001, 9002)
	successCodes = codeSet(0, 3, 4, 18, 20)
)

func codeSet(codes ...int) map[int]bool {
	m := make(map[int]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

// IsIgnored reports whether code is purely informational.
func IsIgnored(code int) bool { return ignoredCodes[code] }

// IsError reports whether code terminates a reply with a failure.
func IsError(code int) bool { return errorCodes[code] }

// IsSuccess reports whether code terminates a reply successfully.
func IsSuccess(code int) bool { return successCodes[code] }

// IsTerminal reports whether a reply ends at a line carrying code.
func IsTerminal(code int) bool { return errorCodes[code] || successCodes[code] }

var codeRe = regexp.MustCompile(`^(\d+)[ -]`)

// ReplyLine is one classified reply line.
type ReplyLine struct {
	Code    int
	HasCode bool
	Text    string
}

// ParseLine extracts the leading reply code from a raw line and returns the
// remaining text with the separator and surrounding whitespace removed.
// Lines without a code keep HasCode false; the caller tracks which code they
// continue.
func ParseLine(raw string) ReplyLine {
	m := codeRe.FindStringSubmatch(raw)
	if m == nil {
		return ReplyLine{Text: strings.TrimSpace(raw)}
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		// digits too long for int: not a reply code
		return ReplyLine{Text: strings.TrimSpace(raw)}
	}
	text := strings.TrimLeft(raw[len(m[0]):], "-")
	return ReplyLine{Code: code, HasCode: true, Text: strings.TrimSpace(text)}
}

// Lines is a cursor over the raw lines of one reply.
type Lines struct {
	raw []string
	pos int
}

// NewLines splits a reply into lines. A trailing newline does not produce an
// extra empty line.
func NewLines(reply string) *Lines {
	reply = strings.TrimSuffix(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	if reply == "" {
		return &Lines{}
	}
	return &Lines{raw: strings.Split(reply, "\n")}
}

// Next returns the next raw line, or false once the reply is exhausted.
func (l *Lines) Next() (string, bool) {
	if l.pos >= len(l.raw) {
		return "", false
	}
	line := l.raw[l.pos]
	l.pos++
	return line, true
}

// Peek returns the next raw line without consuming it.
func (l *Lines) Peek() (string, bool) {
	if l.pos >= len(l.raw) {
		return "", false
	}
	return l.raw[l.pos], true
}

// Done reports whether all lines were consumed.
func (l *Lines) Done() bool {
	return l.pos >= len(l.raw)
}
