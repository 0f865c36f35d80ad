package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotCounters(t *testing.T) {
	b := ForBot("counter-bot")

	b.LineReceived()
	b.LineReceived()
	b.LineSent("PRIVMSG")
	b.Duplicate()
	b.Reply(OutcomeSent)
	b.Reply(OutcomeFallback)
	b.ReplyDiscarded(3)
	b.ReplyDiscarded(0)
	b.Reconnect()
	b.SetState(4)
	b.ObserveCompletion(250 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(linesReceived.WithLabelValues("counter-bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(linesSent.WithLabelValues("counter-bot", "PRIVMSG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(duplicates.WithLabelValues("counter-bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(replies.WithLabelValues("counter-bot", OutcomeFallback)))
	assert.Equal(t, 3.0, testutil.ToFloat64(replies.WithLabelValues("counter-bot", OutcomeDiscarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reconnects.WithLabelValues("counter-bot")))
	assert.Equal(t, 4.0, testutil.ToFloat64(connectionState.WithLabelValues("counter-bot")))
}

func TestNilBotIsNoop(t *testing.T) {
	var b *Bot
	assert.NotPanics(t, func() {
		b.LineReceived()
		b.Reply(OutcomeSent)
		b.SetState(1)
		b.ObserveCompletion(time.Second)
	})
}

func TestServerEndpoints(t *testing.T) {
	ready := errors.New("R2D2 is connecting")
	s := NewServer("127.0.0.1:0", func() error { return ready })
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	ForBot("endpoint-bot").LineReceived()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready = nil
	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ircbots_lines_received_total{bot="endpoint-bot"} 1`)
}
