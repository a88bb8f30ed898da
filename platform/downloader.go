package platform

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// netHTTPCancelHandle cancels the context driving a NetDownloader fetch.
type netHTTPCancelHandle struct {
	cancel context.CancelFunc
}

func (h *netHTTPCancelHandle) Cancel() { h.cancel() }

// NetDownloader is a default Downloader implementation backed by
// net/http, streaming the response body in fixed-size chunks. As with
// NetHTTPClient, mobile hosts are expected to supply their own
// platform-native downloader; this exists for tests and headless use.
type NetDownloader struct {
	Client    *http.Client
	ChunkSize int
}

// NewNetDownloader returns a NetDownloader with sane defaults.
func NewNetDownloader() *NetDownloader {
	return &NetDownloader{Client: &http.Client{}, ChunkSize: 64 * 1024}
}

func (d *NetDownloader) DownloadFile(ctx context.Context, url string, onChunk func([]byte), onComplete func(errMsg string)) CancelHandle {
	ctx, cancel := context.WithCancel(ctx)
	handle := &netHTTPCancelHandle{cancel: cancel}

	go func() {
		var once sync.Once
		complete := func(msg string) { once.Do(func() { onComplete(msg) }) }

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			complete(err.Error())
			return
		}
		resp, err := d.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return // cancelled: no further callbacks required
			}
			complete(err.Error())
			return
		}
		defer resp.Body.Close()

		chunkSize := d.ChunkSize
		if chunkSize <= 0 {
			chunkSize = 64 * 1024
		}
		buf := make([]byte, chunkSize)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				onChunk(chunk)
			}
			if err != nil {
				if err == io.EOF {
					complete("")
				} else if ctx.Err() == nil {
					complete(err.Error())
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return handle
}
