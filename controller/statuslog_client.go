package controller

import (
	"context"

	"github.com/calvinmclean/pilldispenser/firmware/report"
	"github.com/calvinmclean/pilldispenser/statuslog"
)

type statusLogClient interface {
	Add(ctx context.Context, s report.Status) (*statuslog.Event, error)
}

type noopStatusLogClient struct{}

var _ statusLogClient = noopStatusLogClient{}

// Add implements statusLogClient.
func (noopStatusLogClient) Add(context.Context, report.Status) (*statuslog.Event, error) {
	return nil, nil
}
