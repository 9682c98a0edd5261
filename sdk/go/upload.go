package hostflowsdk

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ProgressFunc receives upload progress as a percentage in 0..100.
type ProgressFunc func(percent int)

// UploadMedia streams files to the entity as multipart/form-data. onProgress
// is called from the streaming goroutine as file bytes are handed to the
// transport, and once with 100 after the server accepted the upload.
func (c *Client) UploadMedia(ctx context.Context, id string, files []File, onProgress ProgressFunc) ([]Media, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Data))
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	tracker := &progress{total: total, report: onProgress}

	var g errgroup.Group
	g.Go(func() error {
		err := writeParts(mw, files, tracker)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
		return err
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(entityPath(id, "media")), pr)
	if err != nil {
		pr.CloseWithError(err)
		_ = g.Wait()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp struct {
		Items []Media `json:"items"`
	}
	sendErr := c.send(req, &resp)
	// Unblock the writer if the transport stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	writeErr := g.Wait()
	if sendErr != nil {
		return nil, sendErr
	}
	if writeErr != nil {
		return nil, fmt.Errorf("stream media: %w", writeErr)
	}
	tracker.done()
	return resp.Items, nil
}

func writeParts(mw *multipart.Writer, files []File, tracker *progress) error {
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, tracker.reader(f.Data)); err != nil {
			return err
		}
	}
	return nil
}

// progress converts written bytes to a monotonically increasing percentage.
// The final 100 is reserved for a confirmed upload.
type progress struct {
	mu      sync.Mutex
	total   int64
	written int64
	last    int
	report  ProgressFunc
}

func (p *progress) reader(data []byte) io.Reader {
	return &countingReader{data: data, p: p}
}

func (p *progress) add(n int) {
	p.mu.Lock()
	p.written += int64(n)
	pct := 99
	if p.total > 0 {
		pct = int(p.written * 99 / p.total)
	}
	changed := pct > p.last
	if changed {
		p.last = pct
	}
	p.mu.Unlock()
	if changed {
		p.report(pct)
	}
}

func (p *progress) done() {
	p.mu.Lock()
	p.last = 100
	p.mu.Unlock()
	p.report(100)
}

type countingReader struct {
	data []byte
	off  int
	p    *progress
}

const chunkSize = 32 << 10

func (r *countingReader) Read(b []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	if len(b) > chunkSize {
		b = b[:chunkSize]
	}
	n := copy(b, r.data[r.off:])
	r.off += n
	r.p.add(n)
	return n, nil
}
