package probe

import (
	"encoding/json"
	"errors"
	"testing"

	"Go2NetTimeline/internal/model"
	"Go2NetTimeline/internal/timeline"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject, data})
	return nil
}

func TestPublisherForwardsBusEvents(t *testing.T) {
	c := &fakeConn{}
	p := newPublisher(c, "timeline.events", CodecJSON, nil)

	e := timeline.New(nil, timeline.Options{AutoCleanup: timeline.DisableAutoCleanup()})
	defer e.Close()
	e.Subscribe(p.Handle)

	_, err := e.AddPacket(model.RawPacket{"ts": 1.0})
	require.NoError(t, err)
	_, err = e.AddBookmark(1.0, "first", "", "")
	require.NoError(t, err)

	require.Len(t, c.msgs, 2)
	assert.Equal(t, "timeline.events.packetAdded", c.msgs[0].subject)
	assert.Equal(t, "timeline.events.bookmarkAdded", c.msgs[1].subject)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(c.msgs[1].data, &body))
	assert.Equal(t, "first", body["payload"].(map[string]interface{})["label"])
}

func TestPublisherLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := newPublisher(&fakeConn{err: errors.New("disconnected")}, "x", CodecJSON, zap.New(core))

	p.Handle(model.Event{Name: model.EventTimelineCleared})
	assert.Equal(t, 1, logs.FilterMessage("failed to publish event").Len())
}

func TestSubscriberHandle(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := &Subscriber{codec: CodecJSON, logger: zap.New(core)}

	var got [][]model.RawPacket
	handler := func(p []model.RawPacket) { got = append(got, p) }

	s.handle(&nats.Msg{Subject: "in", Data: []byte(`[{"ts":1},{"ts":2}]`)}, handler)
	s.handle(&nats.Msg{Subject: "in", Data: []byte(`garbage`)}, handler)
	s.handle(&nats.Msg{Subject: "in", Data: []byte(`[]`)}, handler)

	require.Len(t, got, 1)
	assert.Len(t, got[0], 2)
	assert.Equal(t, 1, logs.FilterMessage("dropping undecodable message").Len())
}
