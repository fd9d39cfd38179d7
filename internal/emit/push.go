package emit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPush posts undeliverable events to an external notification
// service (push provider, polling bridge). It is the collaborator the
// real-time channel defers to for offline parties.
type HTTPPush struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPPush(endpoint string) *HTTPPush {
	return &HTTPPush{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *HTTPPush) Deliver(identity, event string, data any) error {
	body, err := json.Marshal(map[string]any{
		"identity": identity,
		"event":    event,
		"data":     data,
	})
	if err != nil {
		return err
	}
	resp, err := p.Client.Post(p.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %s", resp.Status)
	}
	return nil
}
