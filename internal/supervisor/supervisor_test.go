package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestShutdownCancelsAllServicesAndWaits(t *testing.T) {
	started := make(chan struct{}, 2)
	stopped := make(chan struct{}, 2)

	svc := func(name string) Service {
		return Service{Name: name, Run: func(ctx context.Context) error {
			started <- struct{}{}
			<-ctx.Done()
			stopped <- struct{}{}
			return nil
		}}
	}

	s := New(svc("a"), svc("b"))
	s.Start(context.Background())

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("service did not start in time")
		}
	}

	require.NoError(t, s.Shutdown(time.Second))

	for i := 0; i < 2; i++ {
		select {
		case <-stopped:
		default:
			t.Fatal("service did not observe cancellation")
		}
	}
}

func TestShutdownReportsServiceError(t *testing.T) {
	s := New(Service{Name: "broken", Run: func(ctx context.Context) error {
		return errors.New("boom")
	}})
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	err := s.Shutdown(time.Second)
	require.Error(t, err)
}

func TestShutdownTimesOutOnStuckService(t *testing.T) {
	s := New(Service{Name: "stuck", Run: func(ctx context.Context) error {
		<-make(chan struct{})
		return nil
	}})
	s.Start(context.Background())
	err := s.Shutdown(50 * time.Millisecond)
	require.NoError(t, err)
}
