package lwt

import (
	"io"
	"os"
)

// Dir is a directory stream opened and read through the worker pool,
// so enumerating a large or slow (network-mounted) directory never
// stalls the scheduler. Grounded on OpenDir/ReadDir/CloseDir in
// original_source/src/lwt/Dirent.h, adapted to Go's directory API
// (os.File.Readdirnames) in place of opendir(3)/readdir_r(3).
type Dir struct {
	sched *Scheduler
	file  *os.File
	names []string // buffered batch from the last Readdirnames call
	pos   int
	eof   bool
}

type openDirOp struct {
	path string
	file *os.File
}

func (o *openDirOp) perform() error {
	f, err := os.Open(o.path)
	if err != nil {
		return err
	}
	o.file = f
	return nil
}

type readDirOp struct {
	file  *os.File
	names []string
}

// dirReadBatch bounds how many entries one worker-thread readdir call
// fetches at a time, the Go analogue of readdir_r's one-entry-per-call
// shape, batched for fewer round trips through the pool.
const dirReadBatch = 64

func (o *readDirOp) perform() error {
	names, err := o.file.Readdirnames(dirReadBatch)
	o.names = names
	return err
}

type closeDirOp struct {
	file *os.File
}

func (o *closeDirOp) perform() error {
	return o.file.Close()
}

// OpenDir opens path for enumeration on a worker thread, suspending
// the calling fiber until opendir(3) (via os.Open) completes.
func (s *Scheduler) OpenDir(path string) (*Dir, error) {
	op := &openDirOp{path: path}
	if _, err := s.pool.Execute(op, true); err != nil {
		return nil, WrapError("open directory "+path, err)
	}
	return &Dir{sched: s, file: op.file}, nil
}

// Next returns the next directory entry name, or ("", io.EOF) once the
// stream is exhausted. It blocks the calling fiber on the worker pool
// only when its buffered batch is empty.
func (d *Dir) Next() (string, error) {
	for d.pos >= len(d.names) {
		if d.eof {
			return "", io.EOF
		}
		op := &readDirOp{file: d.file}
		_, err := d.sched.pool.Execute(op, true)
		d.names = op.names
		d.pos = 0
		if len(op.names) == 0 {
			d.eof = true
			if err != nil && err != io.EOF {
				return "", err
			}
			return "", io.EOF
		}
	}
	name := d.names[d.pos]
	d.pos++
	return name, nil
}

// Close releases the directory stream on a worker thread.
func (d *Dir) Close() error {
	op := &closeDirOp{file: d.file}
	_, err := d.sched.pool.Execute(op, true)
	return err
}
