package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
)

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}

// startPostgres runs a throwaway Postgres container. It skips in short
// mode and when Docker is unavailable.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	// testcontainers can panic when the socket is missing
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		cli, err := testcontainers.NewDockerClientWithOpts(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()
		_, err = cli.Ping(ctx)
		return err
	}()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("framegate_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Terminate(context.Background()); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return connStr
}

func update(session string, frame uint64, at time.Time, results ...classifier.Recognition) display.Update {
	return display.Update{
		Session:   session,
		Frame:     frame,
		Time:      at,
		Results:   results,
		Device:    classifier.DeviceCPU,
		Threads:   "2",
		FrameSize: "640x480",
		Rotation:  "90",
		Latency:   15 * time.Millisecond,
	}
}

func TestStoreIntegration(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// schema creation is idempotent
	s2, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("second New failed: %v", err)
	}
	s2.Close(ctx)

	base := time.Now().Add(-time.Minute).UTC().Truncate(time.Millisecond)
	tabby := classifier.Recognition{ID: "281", Title: "tabby", Confidence: 0.72}
	tiger := classifier.Recognition{ID: "282", Title: "tiger cat", Confidence: 0.2}

	for i, u := range []display.Update{
		update("s1", 1, base, tabby, tiger),
		update("s1", 2, base.Add(time.Second), tabby),
		update("s2", 1, base.Add(2*time.Second)),
	} {
		if err := s.RecordResult(ctx, u); err != nil {
			t.Fatalf("RecordResult(%d) failed: %v", i, err)
		}
	}

	recent, err := s.RecentResults(ctx, "", 10)
	if err != nil {
		t.Fatalf("RecentResults failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("RecentResults returned %d rows, want 3", len(recent))
	}
	if recent[0].Session != "s2" || len(recent[0].Results) != 0 || recent[0].Top != "" {
		t.Errorf("newest = %+v", recent[0])
	}
	oldest := recent[2]
	if oldest.Frame != 1 || oldest.Top != "tabby" || len(oldest.Results) != 2 || oldest.Results[1].Title != "tiger cat" {
		t.Errorf("oldest = %+v", oldest)
	}
	if oldest.LatencyMs != 15 || oldest.Rotation != "90" || oldest.Device != "CPU" {
		t.Errorf("oldest metadata = %+v", oldest)
	}

	only, err := s.RecentResults(ctx, "s1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(only) != 1 || only[0].Frame != 2 {
		t.Errorf("RecentResults(s1, 1) = %+v", only)
	}

	sessions, err := s.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].Session != "s2" {
		t.Fatalf("Sessions = %+v", sessions)
	}
	if sessions[1].Frames != 2 || sessions[1].TopDetected != "tabby" {
		t.Errorf("s1 summary = %+v", sessions[1])
	}

	// recorder end to end
	r := NewRecorder(s, 4, quietLogger())
	rctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		r.Run(rctx)
		close(done)
	}()
	r.Publish(update("s3", 1, time.Now(), tabby))
	deadline := time.Now().Add(5 * time.Second)
	for r.Stats().Recorded < 1 {
		if time.Now().After(deadline) {
			t.Fatalf("recorder stats = %+v", r.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if err := s.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.RecordResult(ctx, update("s1", 9, time.Now())); !errors.Is(err, ErrClosed) {
		t.Errorf("RecordResult after Close = %v, want ErrClosed", err)
	}
}
