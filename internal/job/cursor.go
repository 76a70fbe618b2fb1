package job

import "bytes"

// Cursor reassembles newline-delimited frames from arbitrarily split chunks.
// An unterminated tail is carried into the next Feed.
type Cursor struct {
	buf    []byte
	frames int
}

// Feed appends chunk and returns every complete frame it closes, without the
// line terminator. Blank lines are skipped. Returned slices are owned by the
// caller.
func (c *Cursor) Feed(chunk []byte) [][]byte {
	c.buf = append(c.buf, chunk...)

	var out [][]byte
	for {
		i := bytes.IndexByte(c.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(c.buf[:i], "\r")
		c.buf = c.buf[i+1:]
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, bytes.Clone(line))
		c.frames++
	}

	if len(c.buf) == 0 {
		c.buf = nil
	}
	return out
}

// Flush returns the unterminated tail, if any, and clears the buffer.
func (c *Cursor) Flush() []byte {
	tail := bytes.TrimSpace(c.buf)
	c.buf = nil
	if len(tail) == 0 {
		return nil
	}
	c.frames++
	return bytes.Clone(tail)
}

// Reset discards any buffered bytes.
func (c *Cursor) Reset() {
	c.buf = nil
}

// Buffered is the length of the carried-over fragment.
func (c *Cursor) Buffered() int { return len(c.buf) }

// Frames counts frames handed out so far.
func (c *Cursor) Frames() int { return c.frames }
