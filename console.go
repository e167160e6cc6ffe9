package flashio

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
)

// Console is the character device behind descriptors 0, 1 and 2.
type Console struct {
	in  *bufio.Reader
	out io.Writer
	err io.Writer

	// crlf translates "\n" to "\r\n" on output, as serial terminals expect.
	crlf bool

	rmu sync.Mutex
	wmu sync.Mutex
}

// NewConsole creates a console reading from in and writing to out and errw.
// Nil streams behave like an empty input and a discarding output.
func NewConsole(in io.Reader, out, errw io.Writer) *Console {
	if in == nil {
		in = bytes.NewReader(nil)
	}
	if out == nil {
		out = io.Discard
	}
	if errw == nil {
		errw = io.Discard
	}
	return &Console{in: bufio.NewReader(in), out: out, err: errw}
}

// StdConsole is bound to the process' standard streams.
func StdConsole() *Console {
	return NewConsole(os.Stdin, os.Stdout, os.Stderr)
}

// SetCRLF enables translation of "\n" to "\r\n" on output.
func (c *Console) SetCRLF(on bool) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.crlf = on
}

// ReadLine blocks until p is full, a newline has been read (and stored), or the
// input ends. It returns io.EOF only if the input ended before any byte.
func (c *Console) ReadLine(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	n := 0
	for n < len(p) {
		b, err := c.in.ReadByte()
		if err != nil {
			if n == 0 {
				return 0, err
			}
			return n, nil
		}
		p[n] = b
		n++
		if b == '\n' {
			break
		}
	}
	return n, nil
}

// put writes p to w and reports len(p) on success.
func (c *Console) put(w io.Writer, p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	out := p
	if c.crlf {
		out = bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	}
	if _, err := w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// consoleStream is the stream installed in descriptors 0, 1 and 2.
type consoleStream struct {
	con *Console
	fd  int
}

func consoleStreams(c *Console) [3]stream {
	return [3]stream{
		consoleStream{con: c, fd: 0},
		consoleStream{con: c, fd: 1},
		consoleStream{con: c, fd: 2},
	}
}

func (s consoleStream) Read(p []byte) (int, error) {
	if s.fd != 0 {
		return 0, errWrongDirection
	}
	return s.con.ReadLine(p)
}

func (s consoleStream) Write(p []byte) (int, error) {
	switch s.fd {
	case 1:
		return s.con.put(s.con.out, p)
	case 2:
		return s.con.put(s.con.err, p)
	}
	return 0, errWrongDirection
}

func (s consoleStream) Seek(int64, int) (int64, error) { return 0, errNotSeekable }
func (s consoleStream) Sync() error                    { return nil }
func (s consoleStream) Close() error                   { return nil }

func (s consoleStream) Stat() (Info, error) {
	return Info{Name: [...]string{"stdin", "stdout", "stderr"}[s.fd]}, nil
}
