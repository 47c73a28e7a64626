package cmd_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"i4.energy/across/modemd/cmd"
)

func TestOutbox(t *testing.T) {
	t.Run("Sends queued requests in order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		device := cmd.NewMockDevice(ctrl)

		gomock.InOrder(
			device.EXPECT().SendSMS(gomock.Any(), "111", "one").Return([]int{1}, nil),
			device.EXPECT().SendSMS(gomock.Any(), "222", "two").Return(nil, errors.New("no network")),
		)

		o := cmd.NewOutbox(device, discard, 10)
		done := make(chan cmd.SendStatus, 2)
		o.OnDone = func(st cmd.SendStatus) { done <- st }

		id1, err := o.Enqueue(cmd.SendRequest{To: "111", Message: "one"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		id2, err := o.Enqueue(cmd.SendRequest{ID: "custom", To: "222", Message: "two"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id1 == "" || len(id1) != 16 {
			t.Errorf("expected a 16 digit generated id, got %q", id1)
		}
		if id2 != "custom" {
			t.Errorf("expected the caller's id, got %q", id2)
		}

		if st, ok := o.Status(id1); !ok || st.State != cmd.StateQueued {
			t.Errorf("expected %s queued, got %+v", id1, st)
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		go o.Run(ctx)

		for _, want := range []struct {
			id    string
			state cmd.SendState
		}{{id1, cmd.StateSent}, {id2, cmd.StateFailed}} {
			select {
			case st := <-done:
				if st.ID != want.id || st.State != want.state {
					t.Errorf("expected %s %s, got %+v", want.id, want.state, st)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for send")
			}
		}

		st, _ := o.Status(id1)
		if len(st.References) != 1 || st.References[0] != 1 {
			t.Errorf("expected references [1], got %v", st.References)
		}
		st, _ = o.Status(id2)
		if st.Error != "no network" {
			t.Errorf("expected the send error, got %q", st.Error)
		}
	})

	t.Run("Full queue", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		o := cmd.NewOutbox(cmd.NewMockDevice(ctrl), discard, 1)

		if _, err := o.Enqueue(cmd.SendRequest{To: "111", Message: "one"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := o.Enqueue(cmd.SendRequest{ID: "second", To: "111", Message: "two"})
		if !errors.Is(err, cmd.ErrOutboxFull) {
			t.Errorf("expected ErrOutboxFull, got %v", err)
		}
		if st, _ := o.Status("second"); st.State != cmd.StateFailed {
			t.Errorf("expected the rejected request to be failed, got %s", st.State)
		}
	})

	t.Run("Unknown id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		o := cmd.NewOutbox(cmd.NewMockDevice(ctrl), discard, 1)
		if _, ok := o.Status("nope"); ok {
			t.Error("expected no status for an unknown id")
		}
	})
}

func TestServerOutbox(t *testing.T) {
	ctrl := gomock.NewController(t)
	device := cmd.NewMockDevice(ctrl)
	s := &cmd.Server{
		Logger: discard,
		Device: device,
		Outbox: cmd.NewOutbox(device, discard, 4),
	}

	rec := do(s, "POST", "/outbox", `{"id":"abc","to":"111","message":"hello"}`)
	if rec.Code != 202 {
		t.Fatalf("expected status 202, got %d: %s", rec.Code, rec.Body)
	}

	rec = do(s, "GET", "/outbox/abc", "")
	if rec.Code != 200 {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = do(s, "GET", "/outbox/missing", "")
	if rec.Code != 404 {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}
