package archiver_test

import (
	"context"
	"testing"
	"time"

	"github.com/bowlofstew/nimbus.io/internal/testnode"
	"github.com/bowlofstew/nimbus.io/pkg/archiver"
	"github.com/bowlofstew/nimbus.io/pkg/datawriter"
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

func shardsFor(n int) [][]byte {
	s := make([][]byte, n)
	for i := range s {
		s[i] = []byte{byte(i)}
	}
	return s
}

func TestArchiveSliceRequiresAllWriters(t *testing.T) {
	writers, clients := newWriters(5)
	clients[2].Fail(gwerrors.ErrTransportFailure)

	arc := archiver.New(writers, 1, "key", 1000)
	err := arc.ArchiveSlice(context.Background(), time.Second, shardsFor(5), 1)
	if err != gwerrors.ErrArchiveFailed {
		t.Fatalf("expected ErrArchiveFailed, got %v", err)
	}
}

func TestArchiveSliceSucceedsWhenAllWritersSucceed(t *testing.T) {
	writers, _ := newWriters(4)
	arc := archiver.New(writers, 1, "key", 1000)
	if err := arc.ArchiveSlice(context.Background(), time.Second, shardsFor(4), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestArchiveSliceFirstCallIsStartSubsequentAreNext(t *testing.T) {
	writers, clients := newWriters(1)
	arc := archiver.New(writers, 1, "key", 1000)

	if err := arc.ArchiveSlice(context.Background(), time.Second, shardsFor(1), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := arc.ArchiveSlice(context.Background(), time.Second, shardsFor(1), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := clients[0].Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if sent[0].Control.MessageType != nodeclient.MsgArchiveStart {
		t.Fatalf("expected first message to be archive-start, got %s", sent[0].Control.MessageType)
	}
	if sent[1].Control.MessageType != nodeclient.MsgArchiveNext {
		t.Fatalf("expected second message to be archive-next, got %s", sent[1].Control.MessageType)
	}
	if sent[1].Control.Sequence != 1 {
		t.Fatalf("expected sequence 1 on the second call, got %d", sent[1].Control.Sequence)
	}
}

func TestArchiveFinalCarriesChecksumsAndMeta(t *testing.T) {
	writers, clients := newWriters(2)
	arc := archiver.New(writers, 7, "key", 1000)

	meta := map[string]string{"__nimbus_io__color": "blue"}
	_, err := arc.ArchiveFinal(context.Background(), time.Second, shardsFor(2), 4096, 0xdeadbeef, []byte("0123456789abcdef"), meta)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, c := range clients {
		sent := c.Sent()
		if len(sent) != 1 {
			t.Fatalf("expected exactly one message, got %d", len(sent))
		}
		ctl := sent[0].Control
		if ctl.MessageType != nodeclient.MsgArchiveFinal {
			t.Fatalf("expected archive-final, got %s", ctl.MessageType)
		}
		if ctl.TotalSize != 4096 || ctl.FileAdler32 != 0xdeadbeef {
			t.Fatalf("checksums/size not carried through: %+v", ctl)
		}
		if ctl.Meta["__nimbus_io__color"] != "blue" {
			t.Fatalf("meta not carried through: %+v", ctl.Meta)
		}
	}
}

func TestArchiveFinalRejectsShardCountMismatch(t *testing.T) {
	writers, _ := newWriters(3)
	arc := archiver.New(writers, 1, "key", 1000)
	if _, err := arc.ArchiveFinal(context.Background(), time.Second, shardsFor(2), 10, 0, nil, nil); err == nil {
		t.Fatal("expected shard-count mismatch error")
	}
}

func TestArchiveSliceFailsWhenOneWriterFailsAmongSlowSiblings(t *testing.T) {
	writers, clients := newWriters(6)

	clients[1].SetReply(func(nodeclient.Message) (*nodeclient.Reply, error) {
		return nil, gwerrors.ErrTransportFailure
	})

	for i, c := range clients {
		if i == 1 {
			continue
		}
		c := c
		c.SetReply(func(msg nodeclient.Message) (*nodeclient.Reply, error) {
			<-time.After(150 * time.Millisecond)
			return &nodeclient.Reply{Control: msg.Control}, nil
		})
	}

	arc := archiver.New(writers, 1, "key", 1000)
	err := arc.ArchiveSlice(context.Background(), time.Second, shardsFor(6), 1)
	if err != gwerrors.ErrArchiveFailed {
		t.Fatalf("expected ErrArchiveFailed, got %v", err)
	}
}
