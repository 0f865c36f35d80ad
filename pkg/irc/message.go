// Package irc implements the subset of the IRC line protocol the bots speak:
// line framing, message parsing and the client commands they send.
package irc

import (
	"errors"
	"strconv"
	"strings"
)

const (
	CmdPass    = "PASS"
	CmdNick    = "NICK"
	CmdUser    = "USER"
	CmdJoin    = "JOIN"
	CmdPrivmsg = "PRIVMSG"
	CmdPing    = "PING"
	CmdPong    = "PONG"
	CmdQuit    = "QUIT"
	CmdError   = "ERROR"

	RplWelcome = "001"
)

var (
	ErrEmptyLine = errors.New("irc: empty line")
	ErrMalformed = errors.New("irc: malformed line")
)

// Prefix is the optional message source, e.g. "nick!user@host".
type Prefix struct {
	Nick string
	User string
	Host string
}

// ParsePrefix splits a source without its leading colon. A server name
// with neither '!' nor '@' ends up in Nick.
func ParsePrefix(s string) Prefix {
	var p Prefix
	rest := s
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		p.Host = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		p.User = rest[i+1:]
		rest = rest[:i]
	}
	p.Nick = rest
	return p
}

func (p Prefix) IsZero() bool {
	return p.Nick == "" && p.User == "" && p.Host == ""
}

func (p Prefix) String() string {
	s := p.Nick
	if p.User != "" {
		s += "!" + p.User
	}
	if p.Host != "" {
		s += "@" + p.Host
	}
	return s
}

// Message is one parsed protocol line.
type Message struct {
	Prefix  Prefix
	Command string
	Params  []string

	// rawParams is the unparsed text after the command, kept so PING
	// tokens can be echoed back byte for byte.
	rawParams string
}

// Parse splits a single line (terminator optional) into prefix, command and
// params. A leading IRCv3 tag block is skipped.
func Parse(line string) (Message, error) {
	line = strings.TrimRight(line, "\r\n")
	rest := strings.TrimLeft(line, " ")
	if rest == "" {
		return Message{}, ErrEmptyLine
	}

	if rest[0] == '@' {
		i := strings.IndexByte(rest, ' ')
		if i < 0 {
			return Message{}, ErrMalformed
		}
		rest = strings.TrimLeft(rest[i+1:], " ")
	}

	var m Message
	if strings.HasPrefix(rest, ":") {
		i := strings.IndexByte(rest, ' ')
		if i < 0 {
			return Message{}, ErrMalformed
		}
		m.Prefix = ParsePrefix(rest[1:i])
		rest = strings.TrimLeft(rest[i+1:], " ")
	}

	cmd, params, _ := strings.Cut(rest, " ")
	if !validCommand(cmd) {
		return Message{}, ErrMalformed
	}
	m.Command = strings.ToUpper(cmd)
	m.rawParams = strings.TrimLeft(params, " ")
	m.Params = splitParams(m.rawParams)
	return m, nil
}

func validCommand(cmd string) bool {
	if cmd == "" {
		return false
	}
	if isNumeric(cmd) {
		return true
	}
	for _, r := range cmd {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

func isNumeric(cmd string) bool {
	if len(cmd) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if cmd[i] < '0' || cmd[i] > '9' {
			return false
		}
	}
	return true
}

func splitParams(s string) []string {
	var params []string
	for {
		s = strings.TrimLeft(s, " ")
		if s == "" {
			return params
		}
		if s[0] == ':' {
			return append(params, s[1:])
		}
		tok, rest, found := strings.Cut(s, " ")
		params = append(params, tok)
		if !found {
			return params
		}
		s = rest
	}
}

// Param returns the i-th parameter or "".
func (m Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "".
func (m Message) Trailing() string {
	return m.Param(len(m.Params) - 1)
}

func (m Message) Numeric() (int, bool) {
	if !isNumeric(m.Command) {
		return 0, false
	}
	n, err := strconv.Atoi(m.Command)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (m Message) IsWelcome() bool {
	return m.Command == RplWelcome
}

// PingToken reports whether m is a PING and returns the token text exactly
// as the server sent it, including a leading colon if there was one.
func (m Message) PingToken() (string, bool) {
	if m.Command != CmdPing {
		return "", false
	}
	return m.rawParams, true
}

// Joined returns who joined which channel. The usual form carries the
// joiner in the prefix (":nick!u@h JOIN #chan"); some servers relay it as
// ":server JOIN nick :#chan" with the joiner as first parameter.
func (m Message) Joined() (nick, channel string, ok bool) {
	if m.Command != CmdJoin || len(m.Params) == 0 {
		return "", "", false
	}
	if len(m.Params) >= 2 && !IsChannel(m.Params[0]) {
		return m.Params[0], m.Params[len(m.Params)-1], true
	}
	if m.Prefix.Nick == "" {
		return "", "", false
	}
	return m.Prefix.Nick, m.Params[0], true
}

// Privmsg extracts speaker, target and text. ok is false for anything that
// is not a usable PRIVMSG.
func (m Message) Privmsg() (speaker, target, text string, ok bool) {
	if m.Command != CmdPrivmsg || len(m.Params) < 2 || m.Prefix.Nick == "" {
		return "", "", "", false
	}
	return m.Prefix.Nick, m.Params[0], m.Params[len(m.Params)-1], true
}

// IsError reports a server ERROR, which always precedes the server closing
// the link.
func (m Message) IsError() bool {
	return m.Command == CmdError
}

// IsChannel reports whether target names a channel rather than a nick.
func IsChannel(target string) bool {
	if target == "" {
		return false
	}
	switch target[0] {
	case '#', '&', '+', '!':
		return true
	}
	return false
}

// ToLower folds s using rfc1459 casemapping, where {}|^ are the lower-case
// forms of []\~.
func ToLower(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == '[':
			return '{'
		case r == ']':
			return '}'
		case r == '\\':
			return '|'
		case r == '~':
			return '^'
		}
		return r
	}, s)
}

func EqualFold(a, b string) bool {
	return ToLower(a) == ToLower(b)
}

// ContainsFold reports whether needle occurs in haystack, ignoring case.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(ToLower(haystack), ToLower(needle))
}
