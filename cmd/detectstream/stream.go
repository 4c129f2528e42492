package main

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// mjpegStream serves the latest published JPEG frame to each connected
// browser as a multipart stream
type mjpegStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  []byte
	seq    uint64
	closed bool
	log    *zap.SugaredLogger
}

func newMJPEGStream(log *zap.SugaredLogger) *mjpegStream {
	s := &mjpegStream{log: log}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish replaces the current frame, buf is copied
func (s *mjpegStream) Publish(buf []byte) {

	frame := make([]byte, len(buf))
	copy(frame, buf)

	s.mu.Lock()
	s.frame = frame
	s.seq++
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Close ends all client streams
func (s *mjpegStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// next blocks until a frame newer than seq is published, the stream is
// closed or ctx is done
func (s *mjpegStream) next(ctx context.Context, seq uint64) ([]byte, uint64, bool) {

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.seq <= seq && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}

	if s.closed || ctx.Err() != nil {
		return nil, seq, false
	}

	return s.frame, s.seq, true
}

// ServeHTTP streams frames to the client until it disconnects
func (s *mjpegStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {

	s.log.Infow("New client connection established", "remote", r.RemoteAddr)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	var seq uint64

	for {
		var (
			frame []byte
			ok    bool
		)

		frame, seq, ok = s.next(r.Context(), seq)

		if !ok {
			s.log.Infow("Client disconnected", "remote", r.RemoteAddr)
			return
		}

		w.Write([]byte("--frame\r\n"))
		w.Write([]byte("Content-Type: image/jpeg\r\n\r\n"))
		w.Write(frame)
		w.Write([]byte("\r\n"))

		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}
