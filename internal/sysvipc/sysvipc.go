// Package sysvipc provides the two System-V IPC primitives pv's cursor
// coordinator and remote-control channel need: a shared-memory segment
// holding one 32-bit integer (spec.md section 4.3, "Wire/IPC formats" in
// section 6), and a typed message queue (spec.md section 4.4, same
// section 6 entry). Both are modelled as raw syscalls in the same style as
// the teacher's github.com/daedaluz/goioctl usage (uintptr arguments,
// errno-derived error returns) since golang.org/x/sys/unix does not wrap
// msgget/msgsnd/msgrcv directly.
package sysvipc

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Key is a System-V IPC key, as returned by Ftok.
type Key int32

// Ftok derives an IPC key from a path that must exist and a single-byte
// project id, following the conventional ftok(3) algorithm: the path's
// device and inode numbers are folded together with the project id. Two
// processes that agree on path and id always derive the same key, which is
// how the cursor coordinator's siblings find the same shared-memory
// segment and how a remote-control sender finds its target's queue.
func Ftok(path string, projID byte) (Key, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, err
	}
	k := (int32(projID) << 24) | (int32(st.Dev&0xff) << 16) | int32(st.Ino&0xffff)
	return Key(k), nil
}

const (
	ipcCreat  = 0o1000
	ipcExcl   = 0o2000
	ipcNowait = 0o4000
)

// MsgQueue is an attached System-V message queue.
type MsgQueue struct {
	id int
}

// MsgGet creates or attaches the queue for key with the given permission
// bits (e.g. 0600).
func MsgGet(key Key, perm uint32) (*MsgQueue, error) {
	id, _, errno := syscall.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(ipcCreat|perm), 0)
	if errno != 0 {
		return nil, errno
	}
	return &MsgQueue{id: int(id)}, nil
}

// rawMsg mirrors struct msgbuf: a leading long mtype followed by the
// payload bytes. pv's remote-control message (internal/remote) sets mtype
// to the recipient's pid so a shared per-euid queue can carry messages
// addressed to many sibling instances (spec.md section 3's "bare
// remote-message channel identity" paragraph).
type rawMsg struct {
	mtype int64
	data  [maxMsgSize]byte
}

// maxMsgSize bounds the marshaled remote.Message payload (see
// internal/remote/message.go); comfortably larger than its fixed-shape
// encoding.
const maxMsgSize = 512

// Send enqueues payload with the given message type (conventionally the
// recipient pid).
func (q *MsgQueue) Send(mtype int64, payload []byte) error {
	if len(payload) > maxMsgSize {
		return syscall.EMSGSIZE
	}
	var m rawMsg
	m.mtype = mtype
	copy(m.data[:], payload)
	sz := uintptr(8 + len(payload))
	_, _, errno := syscall.Syscall(unix.SYS_MSGSND, uintptr(q.id),
		uintptr(unsafe.Pointer(&m)), sz)
	if errno != 0 {
		return errno
	}
	return nil
}

// Receive performs a non-blocking receive (IPC_NOWAIT) of a message with
// the given type (0 matches any type), per spec.md section 4.4's "per tick
// ... non-blocking receive". It returns (nil, syscall.ENOMSG) when no
// matching message is queued.
func (q *MsgQueue) Receive(mtype int64, maxLen int) ([]byte, error) {
	if maxLen > maxMsgSize {
		maxLen = maxMsgSize
	}
	var m rawMsg
	n, _, errno := syscall.Syscall6(unix.SYS_MSGRCV, uintptr(q.id),
		uintptr(unsafe.Pointer(&m)), uintptr(maxLen), uintptr(mtype), ipcNowait, 0)
	if errno != 0 {
		return nil, errno
	}
	out := make([]byte, n)
	copy(out, m.data[:n])
	return out, nil
}

// Count returns the number of messages currently queued (IPC_STAT's
// msg_qnum), used by the remote-control sender to detect that its message
// was consumed (spec.md section 4.4's send-side polling loop).
func (q *MsgQueue) Count() (int, error) {
	// msqid_ds layout: embedded ipc_perm, 3 timestamps, then the counters
	// we actually want (cbytes, qnum, qbytes) followed by the last
	// sender/receiver pids.
	type msqidDS struct {
		perm   unix.SysvIpcPerm
		stime  int64
		rtime  int64
		ctime  int64
		cbytes uint64
		qnum   uint64
		qbytes uint64
		lspid  int32
		lrpid  int32
	}
	var ds msqidDS
	const ipcStat = 2
	_, _, errno := syscall.Syscall(unix.SYS_MSGCTL, uintptr(q.id), ipcStat, uintptr(unsafe.Pointer(&ds)))
	if errno != 0 {
		return 0, errno
	}
	return int(ds.qnum), nil
}

// Remove destroys the queue (IPC_RMID).
func (q *MsgQueue) Remove() error {
	const ipcRmid = 0
	_, _, errno := syscall.Syscall(unix.SYS_MSGCTL, uintptr(q.id), ipcRmid, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// SharedInt is a System-V shared-memory segment sized to hold exactly one
// int32. The cursor coordinator keeps its count of claimed display rows
// in it; it does not store a cursor Y-coordinate.
type SharedInt struct {
	id   int
	addr uintptr
}

// GetSharedInt attaches (creating if necessary) a one-int32 segment for
// key.
func GetSharedInt(key Key, perm uint32) (*SharedInt, bool, error) {
	id, _, errno := syscall.Syscall(unix.SYS_SHMGET, uintptr(key), 4, uintptr(ipcCreat|ipcExcl|perm))
	created := errno == 0
	if errno == syscall.EEXIST {
		id, _, errno = syscall.Syscall(unix.SYS_SHMGET, uintptr(key), 4, uintptr(perm))
	}
	if errno != 0 {
		return nil, false, errno
	}
	addr, _, errno := syscall.Syscall(unix.SYS_SHMAT, id, 0, 0)
	if errno != 0 {
		return nil, false, errno
	}
	return &SharedInt{id: int(id), addr: addr}, created, nil
}

// Get reads the current value.
func (s *SharedInt) Get() int32 {
	return *(*int32)(unsafePointer(s.addr))
}

// Set writes a new value.
func (s *SharedInt) Set(v int32) {
	*(*int32)(unsafePointer(s.addr)) = v
}

// Detach detaches the segment from this process's address space.
func (s *SharedInt) Detach() error {
	_, _, errno := syscall.Syscall(unix.SYS_SHMDT, s.addr, 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Destroy marks the segment for removal once the last process detaches
// (IPC_RMID). Called by the last attached cursor-coordinator instance at
// teardown (spec.md section 4.3's "Teardown" paragraph).
func (s *SharedInt) Destroy() error {
	const ipcRmid = 0
	_, _, errno := syscall.Syscall(unix.SYS_SHMCTL, uintptr(s.id), ipcRmid, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
