package irc

import (
	"strings"
	"unicode/utf8"
)

// MaxTextBytes keeps a PRIVMSG body well inside the 512-byte line limit
// once the server prepends our full prefix when relaying it.
const MaxTextBytes = 400

// Pass builds the optional server password line.
func Pass(password string) string {
	return CmdPass + " " + middle(password)
}

func Nick(nick string) string {
	return CmdNick + " " + middle(nick)
}

// User builds the registration line "USER <nick> 0 * :<realname>".
func User(nick, realname string) string {
	if strings.TrimSpace(realname) == "" {
		realname = nick
	}
	return CmdUser + " " + middle(nick) + " 0 * :" + sanitize(realname)
}

func Join(channel string) string {
	return CmdJoin + " " + middle(channel)
}

func Privmsg(target, text string) string {
	return CmdPrivmsg + " " + middle(target) + " :" + sanitize(text)
}

// Pong echoes a PING token as received, see Message.PingToken.
func Pong(token string) string {
	token = sanitize(token)
	if token == "" {
		return CmdPong
	}
	return CmdPong + " " + token
}

func Ping(token string) string {
	return CmdPing + " :" + sanitize(token)
}

func Quit(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return CmdQuit
	}
	return CmdQuit + " :" + sanitize(reason)
}

// String serializes m without a line terminator. The last parameter is
// written in trailing form when it needs to be.
func (m Message) String() string {
	var b strings.Builder
	if !m.Prefix.IsZero() {
		b.WriteByte(':')
		b.WriteString(m.Prefix.String())
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 {
			p = sanitize(p)
			if p == "" || strings.ContainsRune(p, ' ') || p[0] == ':' {
				b.WriteByte(':')
			}
			b.WriteString(p)
			continue
		}
		b.WriteString(middle(p))
	}
	return b.String()
}

// sanitize strips bytes that would end or corrupt a protocol line.
func sanitize(s string) string {
	if !strings.ContainsAny(s, "\r\n\x00") {
		return s
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', 0:
			return -1
		}
		return r
	}, s)
}

func middle(s string) string {
	return strings.ReplaceAll(sanitize(s), " ", "")
}

// SplitText turns free-form text into PRIVMSG-sized lines. Newlines start a
// new line, long lines break at the last space within limit when one is
// reasonably close, and at most maxLines lines are returned (0 = no cap).
func SplitText(text string, limit, maxLines int) []string {
	if limit <= 0 {
		limit = MaxTextBytes
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(sanitize(line))
		for line != "" {
			if maxLines > 0 && len(out) >= maxLines {
				return out
			}
			if len(line) <= limit {
				out = append(out, line)
				break
			}
			cut := findLastSpace(line[:limit], limit/2)
			if cut <= 0 {
				cut = runeBoundary(line, limit)
			}
			out = append(out, strings.TrimSpace(line[:cut]))
			line = strings.TrimSpace(line[cut:])
		}
	}
	return out
}

// findLastSpace returns the index of the last space in s, or -1 when the
// space sits more than searchWindow bytes before the end.
func findLastSpace(s string, searchWindow int) int {
	i := strings.LastIndexByte(s, ' ')
	if i < 0 || len(s)-i > searchWindow {
		return -1
	}
	return i
}

func runeBoundary(s string, n int) int {
	if n >= len(s) {
		return len(s)
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
