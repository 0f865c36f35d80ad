package irc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandLines(t *testing.T) {
	assert.Equal(t, "PASS hunter2", Pass("hunter2"))
	assert.Equal(t, "NICK Bot", Nick("Bot"))
	assert.Equal(t, "USER Bot 0 * :AI Bot", User("Bot", "AI Bot"))
	assert.Equal(t, "USER Bot 0 * :Bot", User("Bot", ""))
	assert.Equal(t, "JOIN #x", Join("#x"))
	assert.Equal(t, "PRIVMSG #x :Bot reporting in!", Privmsg("#x", "Bot reporting in!"))
	assert.Equal(t, "PONG :abc", Pong(":abc"))
	assert.Equal(t, "PONG", Pong(""))
	assert.Equal(t, "PING :1700000000", Ping("1700000000"))
	assert.Equal(t, "QUIT :bye now", Quit("bye now"))
	assert.Equal(t, "QUIT", Quit(""))
}

func TestCommandLinesCannotBeInjected(t *testing.T) {
	lines := []string{
		Privmsg("#x", "hello\r\nQUIT :pwned"),
		Privmsg("#x\r\nJOIN #evil", "hi"),
		Quit("a\nb"),
		User("Bot", "real\x00name"),
	}
	for _, line := range lines {
		assert.False(t, strings.ContainsAny(line, "\r\n\x00"), "line %q", line)
	}
	assert.Equal(t, "PRIVMSG #x :helloQUIT :pwned", lines[0])
}

func TestMessageString(t *testing.T) {
	m := Message{Prefix: Prefix{Nick: "a", User: "b", Host: "c"}, Command: "PRIVMSG", Params: []string{"#x", "hi there"}}
	assert.Equal(t, ":a!b@c PRIVMSG #x :hi there", m.String())

	m = Message{Command: "JOIN", Params: []string{"#x"}}
	assert.Equal(t, "JOIN #x", m.String())

	m = Message{Command: "PRIVMSG", Params: []string{"#x", ":)"}}
	assert.Equal(t, "PRIVMSG #x ::)", m.String())

	parsed, err := Parse(m.String())
	assert.NoError(t, err)
	assert.Equal(t, m.Params, parsed.Params)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"hello there"}, SplitText("  hello there  ", 0, 0))
	assert.Equal(t, []string{"one", "two"}, SplitText("one\r\n\r\ntwo\n", 0, 0))
	assert.Equal(t, []string{"one", "two"}, SplitText("one\ntwo\nthree", 0, 2))
	assert.Empty(t, SplitText(" \n\t\n", 0, 0))

	long := strings.Repeat("word ", 30)
	parts := SplitText(long, 40, 0)
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 40)
		assert.False(t, strings.HasPrefix(p, " ") || strings.HasSuffix(p, " "))
	}
	assert.Equal(t, strings.TrimSpace(long), strings.Join(parts, " "))

	unbroken := strings.Repeat("é", 30)
	parts = SplitText(unbroken, 11, 0)
	assert.Equal(t, unbroken, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len(p), 11)
	}
}
