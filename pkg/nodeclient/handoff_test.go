package nodeclient_test

import (
	"context"
	"testing"

	"github.com/bowlofstew/nimbus.io/internal/testnode"
	"github.com/bowlofstew/nimbus.io/pkg/nodeclient"
)

func TestHandoffSendWinsOnFirstSuccess(t *testing.T) {
	slow := testnode.NewFakeClient("backup-slow")
	fast := testnode.NewFakeClient("backup-fast")
	slow.Fail(context.DeadlineExceeded)

	h := nodeclient.NewHandoffClient("primary", slow, fast)
	reply, err := h.Send(context.Background(), nodeclient.Message{Control: nodeclient.Control{Key: "k"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply == nil {
		t.Fatal("expected a reply from the surviving backup")
	}
}

func TestHandoffSendFailsWhenBothBackupsFail(t *testing.T) {
	b1 := testnode.NewFakeClient("backup-1")
	b2 := testnode.NewFakeClient("backup-2")
	b1.Fail(context.DeadlineExceeded)
	b2.Fail(context.DeadlineExceeded)

	h := nodeclient.NewHandoffClient("primary", b1, b2)
	if _, err := h.Send(context.Background(), nodeclient.Message{}); err == nil {
		t.Fatal("expected an error when both backups fail")
	}
}

func TestHandoffSendTagsMessageWithPrimaryNodeName(t *testing.T) {
	b1 := testnode.NewFakeClient("backup-1")
	b2 := testnode.NewFakeClient("backup-2")

	h := nodeclient.NewHandoffClient("down-node", b1, b2)
	if _, err := h.Send(context.Background(), nodeclient.Message{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sawTag := false
	for _, c := range []*testnode.FakeClient{b1, b2} {
		for _, msg := range c.Sent() {
			if msg.Control.HandoffOf == "down-node" {
				sawTag = true
			}
		}
	}
	if !sawTag {
		t.Fatal("expected at least one backup to observe the handoff_of tag")
	}
}

func TestHandoffConnectedReflectsEitherBackup(t *testing.T) {
	up := testnode.NewFakeClient("up")
	down := testnode.NewFakeClient("down")
	down.SetConnected(false)

	h := nodeclient.NewHandoffClient("primary", down, up)
	if !h.Connected() {
		t.Fatal("expected Connected() to be true when one backup is up")
	}

	up.SetConnected(false)
	if h.Connected() {
		t.Fatal("expected Connected() to be false when both backups are down")
	}
}
