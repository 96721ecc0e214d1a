package remote

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/icetee/pv/internal/sysvipc"
)

// keyPath is stat'd to derive the shared per-euid queue's ftok-equivalent
// key. The original pv keys its message queue off a fixed, always-present
// path rather than a per-invocation one, so that an unrelated sender
// process (given only a target pid) can find the same queue; /tmp serves
// that role here the same way it does for the cursor coordinator's
// lockfile. OpenReceiver and OpenSender XOR the effective uid into that
// key, so each user gets a queue of its own.
const keyPath = "/tmp"

// Receiver is the listening side, owned by the instance being controlled.
type Receiver struct {
	q   *sysvipc.MsgQueue
	pid int64
}

// OpenReceiver attaches (creating if necessary) this euid's shared queue,
// and will only ever receive messages addressed to the current process's
// pid (spec.md section 3: "a bare remote-message channel identity" shared
// by euid, individually addressed by pid as the message type).
func OpenReceiver() (*Receiver, error) {
	key, err := sysvipc.Ftok(keyPath, projID)
	if err != nil {
		return nil, err
	}
	key ^= sysvipc.Key(os.Geteuid())
	q, err := sysvipc.MsgGet(key, 0o600)
	if err != nil {
		return nil, err
	}
	return &Receiver{q: q, pid: int64(os.Getpid())}, nil
}

// Poll performs one non-blocking receive, per spec.md section 4.4's "per
// tick: non-blocking receive keyed by pid". It returns (Message{}, false,
// nil) when nothing is queued.
func (r *Receiver) Poll() (Message, bool, error) {
	data, err := r.q.Receive(r.pid, 512)
	if err != nil {
		if errors.Is(err, syscall.ENOMSG) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	m, err := Decode(data)
	if err != nil {
		return Message{}, false, err
	}
	return m, true, nil
}

// Close removes nothing: the queue is shared by every instance under this
// euid, so a receiver simply stops polling rather than destroying it.
func (r *Receiver) Close() error { return nil }

// Sender is the one-shot client side (cmd/pv's --remote path): it
// enqueues a message addressed to targetPID and polls the queue's message
// count to detect consumption, up to about 1.1 seconds, per spec.md
// section 4.4's send-side polling loop.
type Sender struct {
	q *sysvipc.MsgQueue
}

func OpenSender() (*Sender, error) {
	key, err := sysvipc.Ftok(keyPath, projID)
	if err != nil {
		return nil, err
	}
	key ^= sysvipc.Key(os.Geteuid())
	q, err := sysvipc.MsgGet(key, 0o600)
	if err != nil {
		return nil, err
	}
	return &Sender{q: q}, nil
}

// Send enqueues m addressed to targetPID and waits for the receiver to
// consume it (the queue's message count dropping back to its pre-send
// value), polling every 100ms for up to about 1.1 seconds before giving up
// and reporting ErrNotConsumed.
var ErrNotConsumed = errors.New("remote: message was not consumed by the target process")

func (s *Sender) Send(targetPID int, m Message) error {
	before, err := s.q.Count()
	if err != nil {
		return err
	}
	if err := s.q.Send(int64(targetPID), m.Encode()); err != nil {
		return err
	}
	deadline := time.Now().Add(1100 * time.Millisecond)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
		n, err := s.q.Count()
		if err != nil {
			return err
		}
		if n <= before {
			return nil
		}
	}
	return ErrNotConsumed
}
