package destroyer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/testnode"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
	"github.com/bowlofstew/nimbus.io/pkg/destroyer"
	"github.com/bowlofstew/nimbus.io/pkg/gwerrors"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

func newWriters(n int) ([]*datawriter.DataWriter, []*testnode.FakeClient) {
	writers := make([]*datawriter.DataWriter, n)
	clients := make([]*testnode.FakeClient, n)
	for i := 0; i < n; i++ {
		c := testnode.NewFakeClient("node")
		clients[i] = c
		writers[i] = datawriter.New("node", i+1, c)
	}
	return writers, clients
}

func fixedSize(size int64) destroyer.SizeLookup {
	return func(context.Context, int64, string) (int64, error) {
		return size, nil
	}
}

func TestDestroyRequiresAllWriters(t *testing.T) {
	writers, clients := newWriters(4)
	clients[1].Fail(gwerrors.ErrTransportFailure)

	d := destroyer.New(writers, 1, "key", 1000, fixedSize(512))
	if _, err := d.Destroy(context.Background(), time.Second); err != gwerrors.ErrDestroyFailed {
		t.Fatalf("expected ErrDestroyFailed, got %v", err)
	}
}

func TestDestroySucceedsAndReportsPriorSize(t *testing.T) {
	writers, _ := newWriters(3)
	d := destroyer.New(writers, 1, "key", 1000, fixedSize(4096))

	removed, err := d.Destroy(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 4096 {
		t.Fatalf("expected removed size 4096, got %d", removed)
	}
}

func TestDestroyRejectsConcurrentCallOnSameInstance(t *testing.T) {
	writers, clients := newWriters(3)

	release := make(chan struct{})
	inFlight := make(chan struct{}, len(clients))
	for _, c := range clients {
		c.SetReply(func(msg nodeclient.Message) (*nodeclient.Reply, error) {
			inFlight <- struct{}{}
			<-release
			return &nodeclient.Reply{Control: msg.Control}, nil
		})
	}

	d := destroyer.New(writers, 1, "key", 1000, fixedSize(0))

	var wg sync.WaitGroup
	var firstErr, secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = d.Destroy(context.Background(), 5*time.Second)
	}()

	for i := 0; i < len(clients); i++ {
		<-inFlight
	}

	_, secondErr = d.Destroy(context.Background(), time.Second)
	close(release)
	wg.Wait()

	if firstErr != nil {
		t.Fatalf("expected the first Destroy call to succeed, got %v", firstErr)
	}
	if secondErr != gwerrors.ErrAlreadyInProgress {
		t.Fatalf("expected the overlapping call to be rejected, got %v", secondErr)
	}

	// Once the first call finishes, the lock is released and Destroy can
	// be called again for the same instance.
	if _, err := d.Destroy(context.Background(), time.Second); err != nil {
		t.Fatalf("expected Destroy to be callable again after completion, got %v", err)
	}
}
