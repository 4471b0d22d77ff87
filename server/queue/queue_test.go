package queue

import (
	"testing"
	"time"
)

func TestInitDisabled(t *testing.T) {
	if p, err := Init(nil); p != nil || err != nil {
		t.Errorf("absent config: expected (nil, nil), got (%v, %v)", p, err)
	}
	if p, err := Init([]byte(`{"enabled": false, "url": "amqp://localhost"}`)); p != nil || err != nil {
		t.Errorf("disabled config: expected (nil, nil), got (%v, %v)", p, err)
	}
}

func TestInitMalformedConfig(t *testing.T) {
	if _, err := Init([]byte(`{"enabled": 42`)); err == nil {
		t.Error("malformed config must be rejected")
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	p.Publish(&Event{What: "message.created", Conv: "cnvTest", Timestamp: time.Now()})
	p.Close()
}
