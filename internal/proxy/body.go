package proxy

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

const chunkSize = 32 * 1024

// chunks yields a body as a sequence of byte slices. Each slice is only
// valid until the next call to Next.
type chunks struct {
	r   io.Reader
	buf []byte
}

func newChunks(r io.Reader) *chunks {
	return &chunks{r: r, buf: make([]byte, chunkSize)}
}

// Next returns the next chunk, or io.EOF once the body is exhausted.
func (c *chunks) Next() ([]byte, error) {
	for {
		n, err := c.r.Read(c.buf)
		if n > 0 {
			if err == io.EOF {
				err = nil
			}
			return c.buf[:n], err
		}
		if err != nil {
			return nil, err
		}
	}
}

// collect accumulates every chunk into one buffer.
func collect(r io.Reader) ([]byte, error) {
	var out []byte
	c := newChunks(r)
	for {
		chunk, err := c.Next()
		out = append(out, chunk...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Pipe forwards chunks to w as they arrive, flushing after each one.
func Pipe(w io.Writer, r io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)

	var written int64
	c := newChunks(r)
	for {
		chunk, err := c.Next()
		if len(chunk) > 0 {
			n, werr := w.Write(chunk)
			written += int64(n)
			if werr != nil {
				return written, werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// decodedBody unwraps a gzip Content-Encoding so buffered bodies are
// stored and rewritten as plain bytes.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Encoding")), "gzip") {
		return resp.Body, nil
	}
	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return nil, err
	}
	return gz, nil
}

// readAll reads and closes the upstream body.
func readAll(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	r, err := decodedBody(resp)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return collect(r)
}
