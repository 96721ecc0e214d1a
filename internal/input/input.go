// Package input implements the input sequencer described in spec.md's
// component table (section 2): it iterates the list of inputs, opens each
// in turn, classifies its kind and size, and rejects an input that is the
// same device+inode as the output.
package input

import (
	"os"
	"syscall"

	"github.com/icetee/pv/internal/pverr"
)

// Kind classifies an input per spec.md section 3's "Input descriptor".
type Kind int

const (
	KindRegular Kind = iota
	KindBlockDevice
	KindFIFO
	KindStdin
)

// Descriptor is one opened input: its file, name (for diagnostics and the
// %N-adjacent "current-input name" live-state field), kind, and declared
// size (0 if unknown).
type Descriptor struct {
	File *os.File
	Name string
	Kind Kind
	Size int64 // 0 if unknown
}

// Sequencer walks a list of input paths ("-" meaning stdin), opening each
// lazily as the transfer engine exhausts the previous one.
type Sequencer struct {
	paths   []string
	outDev  uint64
	outIno  uint64
	haveOut bool
	idx     int

	// OnOpenError is invoked (from Next) when an input fails to open; the
	// sequencer removes that input from the list and continues, per
	// spec.md section 7's "Input-open failure" (exit bit 2).
	OnOpenError func(path string, err error)
	// OnCollision is invoked when an input is the same device+inode as
	// the output; spec.md section 7's "Input-is-output collision" (exit
	// bit 4). That input is skipped.
	OnCollision func(path string)
}

// New builds a sequencer over paths. outputPath, if non-empty and not
// "-", is stat'd once up front so every input can be checked against it
// (spec.md section 3's "rejects input == output").
func New(paths []string, outputPath string) (*Sequencer, error) {
	s := &Sequencer{paths: paths}
	if outputPath != "" && outputPath != "-" {
		var st syscall.Stat_t
		if err := syscall.Stat(outputPath, &st); err == nil {
			s.outDev = uint64(st.Dev)
			s.outIno = st.Ino
			s.haveOut = true
		}
	}
	return s, nil
}

func (s *Sequencer) sameAsOutput(st *syscall.Stat_t) bool {
	if !s.haveOut {
		return false
	}
	return uint64(st.Dev) == s.outDev && st.Ino == s.outIno
}

// Next opens and returns the next input in the list, skipping any that
// fail to open or collide with the output, until one succeeds or the list
// is exhausted (nil, nil).
func (s *Sequencer) Next() (*Descriptor, error) {
	for s.idx < len(s.paths) {
		path := s.paths[s.idx]
		s.idx++

		f, kind, err := open(path)
		if err != nil {
			if s.OnOpenError != nil {
				s.OnOpenError(path, err)
			}
			continue
		}

		var st syscall.Stat_t
		if err := syscall.Fstat(int(f.Fd()), &st); err == nil {
			if (kind == KindRegular || kind == KindBlockDevice) && s.sameAsOutput(&st) {
				f.Close()
				if s.OnCollision != nil {
					s.OnCollision(path)
				}
				continue
			}
		}

		size, err := sizeOf(f, kind)
		if err != nil {
			f.Close()
			if s.OnOpenError != nil {
				s.OnOpenError(path, err)
			}
			continue
		}

		return &Descriptor{File: f, Name: path, Kind: kind, Size: size}, nil
	}
	return nil, nil
}

func open(path string) (*os.File, Kind, error) {
	if path == "-" {
		fi, err := os.Stdin.Stat()
		if err != nil {
			return nil, KindStdin, pverr.Wrap("stdin", err)
		}
		return os.Stdin, kindOf(fi.Mode()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, KindRegular, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, KindRegular, err
	}
	return f, kindOf(fi.Mode()), nil
}

func kindOf(mode os.FileMode) Kind {
	switch {
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice == 0:
		return KindBlockDevice
	case mode&(os.ModeNamedPipe|os.ModeCharDevice|os.ModeSocket) != 0:
		return KindFIFO
	default:
		return KindRegular
	}
}

// sizeOf implements spec.md section 3's per-kind size discovery: a regular
// file's size is known from stat; a block device's size is discovered by
// seeking to the end and rewinding; pipes, fifos, and character devices
// have unknown size.
func sizeOf(f *os.File, kind Kind) (int64, error) {
	switch kind {
	case KindRegular:
		fi, err := f.Stat()
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil
	case KindBlockDevice:
		end, err := f.Seek(0, os.SEEK_END)
		if err != nil {
			return 0, nil // unknown rather than fatal; device may not support seek
		}
		if _, err := f.Seek(0, os.SEEK_SET); err != nil {
			return 0, err
		}
		return end, nil
	default:
		return 0, nil
	}
}

// TotalSize sums the sizes of regular-file and block-device descriptors
// already seen, per spec.md section 3: "zero if any input is of unknown
// size". Callers accumulate this as they open each input in turn; a
// single unknown-size input poisons the running total to 0 (tracked by
// the separate anyUnknown field, since 0 is also a legitimate size for an
// empty file).
type TotalSize struct {
	sum         int64
	anyUnknown  bool
	anySeen     bool
}

func (t *TotalSize) Add(d *Descriptor) {
	t.anySeen = true
	switch d.Kind {
	case KindRegular, KindBlockDevice:
		t.sum += d.Size
	default:
		t.anyUnknown = true
	}
}

// Total returns the summed size, or 0 if any input has unknown size.
func (t *TotalSize) Total() int64 {
	if t.anyUnknown || !t.anySeen {
		return 0
	}
	return t.sum
}
