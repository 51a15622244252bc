package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mbd888/riskgate/internal/circuitbreaker"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("sweeper", RunningChecker("sweeper", func() bool { return true }))
	r.Register("realtime", func(_ context.Context) Status {
		return Status{Healthy: false, Detail: "hub stopped"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with unhealthy checker should report unhealthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[1].Name != "realtime" {
		t.Fatalf("expected registered name to fill in, got %q", statuses[1].Name)
	}
	if statuses[1].Detail != "hub stopped" {
		t.Fatalf("expected detail 'hub stopped', got %q", statuses[1].Detail)
	}
}

func TestCircuitChecker(t *testing.T) {
	b := circuitbreaker.New(1, time.Hour)
	check := CircuitChecker(b)

	st := check(context.Background())
	if !st.Healthy {
		t.Fatalf("no circuits should be healthy, got %+v", st)
	}

	b.RecordFailure("payment-service")
	b.RecordFailure("account-service")
	b.RecordSuccess("verification-service")

	st = check(context.Background())
	if st.Healthy {
		t.Fatal("open circuits should be unhealthy")
	}
	if st.Detail != "circuit open: account-service, payment-service" {
		t.Fatalf("unexpected detail %q", st.Detail)
	}
}

func TestRunningChecker(t *testing.T) {
	running := false
	check := RunningChecker("sweeper", func() bool { return running })

	if st := check(context.Background()); st.Healthy || st.Detail != "not running" {
		t.Fatalf("stopped worker: got %+v", st)
	}
	running = true
	if st := check(context.Background()); !st.Healthy || st.Name != "sweeper" {
		t.Fatalf("running worker: got %+v", st)
	}
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}

	wg.Wait()
}
