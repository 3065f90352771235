package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/shopflow/shopflow-backend/pkg/config"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

type fakePinger struct {
	err   error
	calls int
}

func (f *fakePinger) Ping(context.Context) error {
	f.calls++
	return f.err
}

type fakeConsumer struct {
	err  error
	runs int
}

func (f *fakeConsumer) Run(context.Context) error {
	f.runs++
	return f.err
}

func newTestService(t *testing.T, db, redis, ps *fakePinger, c *fakeConsumer) *Service {
	t.Helper()
	params := ServiceParams{
		Config:   &config.Config{},
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:       db,
		PubSub:   ps,
		Consumer: c,
	}
	if redis != nil {
		params.Redis = redis
	}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServiceRunStopsOnUnreadyDependency(t *testing.T) {
	consumer := &fakeConsumer{}
	svc := newTestService(t, &fakePinger{err: errors.New("dial tcp: refused")}, nil, &fakePinger{}, consumer)

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if consumer.runs != 0 {
		t.Fatal("expected consumer not to start")
	}
}

func TestServiceRunTreatsCancellationAsCleanExit(t *testing.T) {
	redis := &fakePinger{}
	consumer := &fakeConsumer{err: context.Canceled}
	svc := newTestService(t, &fakePinger{}, redis, &fakePinger{}, consumer)

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("expected clean exit, got %v", err)
	}
	if redis.calls != 1 || consumer.runs != 1 {
		t.Fatalf("unexpected calls redis=%d consumer=%d", redis.calls, consumer.runs)
	}
}

func TestServiceRunSurfacesConsumerFailure(t *testing.T) {
	consumer := &fakeConsumer{err: errors.New("subscription deleted")}
	svc := newTestService(t, &fakePinger{}, nil, &fakePinger{}, consumer)

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected consumer failure to surface")
	}
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:     &fakePinger{},
		PubSub: &fakePinger{},
	})
	if err == nil {
		t.Fatal("expected missing consumer to fail")
	}
}
