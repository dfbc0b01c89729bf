// Package statuslog keeps a history of dispenser status events behind a small REST API
package statuslog

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/calvinmclean/babyapi"

	"github.com/calvinmclean/pilldispenser"
	"github.com/calvinmclean/pilldispenser/firmware/record"
	"github.com/calvinmclean/pilldispenser/firmware/report"
)

const basePath = "/events"

// Event is one status report
type Event struct {
	babyapi.DefaultResource

	Event     pilldispenser.Event `json:"event"`
	Slot      int                 `json:"slot"`
	Done      int                 `json:"done"`
	Remaining int                 `json:"remaining"`
	Dispensed int                 `json:"dispensed"`
	Missed    int                 `json:"missed"`
	Boots     int                 `json:"boots"`

	ReceivedAt time.Time `json:"received_at"`
}

func (e *Event) Bind(r *http.Request) error {
	err := e.DefaultResource.Bind(r)
	if err != nil {
		return err
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		if e.Event == "" {
			return errors.New("missing required event field")
		}
		if e.ReceivedAt.IsZero() {
			e.ReceivedAt = time.Now()
		}
	}
	return nil
}

// Status returns the event as a status line value
func (e *Event) Status() report.Status {
	return report.Status{
		Event:     e.Event,
		Slot:      e.Slot,
		Done:      e.Done,
		Remaining: e.Remaining,
		Dispensed: e.Dispensed,
		Missed:    e.Missed,
		Boots:     e.Boots,
	}
}

// FromStatus creates a new event. The server assigns the ID
func FromStatus(s report.Status) *Event {
	return &Event{
		Event:     s.Event,
		Slot:      s.Slot,
		Done:      s.Done,
		Remaining: s.Remaining,
		Dispensed: s.Dispensed,
		Missed:    s.Missed,
		Boots:     s.Boots,
	}
}

// NewAPI creates the status log server
func NewAPI() *babyapi.API[*Event] {
	return babyapi.NewAPI("Events", basePath, func() *Event { return &Event{} })
}

// Client posts events to a status log server
type Client struct {
	client  *babyapi.Client[*Event]
	timeout time.Duration
}

func NewClient(addr string) *Client {
	return &Client{
		client:  babyapi.NewClient[*Event](addr, basePath),
		timeout: 5 * time.Second,
	}
}

// Add stores a status event
func (c *Client) Add(ctx context.Context, s report.Status) (*Event, error) {
	resp, err := c.client.Post(ctx, FromStatus(s))
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Get returns a stored event
func (c *Client) Get(ctx context.Context, id string) (*Event, error) {
	resp, err := c.client.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Report implements report.Reporter so the log can receive events straight from a dispenser
func (c *Client) Report(event pilldispenser.Event, rec record.Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := c.Add(ctx, report.StatusOf(event, rec))
	return err
}
