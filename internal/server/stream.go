package server

import (
	"fmt"
	"net/http"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/posecue/internal/app"
	"github.com/ayusman/posecue/internal/capture"
)

// StreamHandler serves camera frames as MJPEG with the current pose, action
// and tracked skeleton drawn on top.
type StreamHandler struct {
	camera capture.Camera
	status *app.Status
}

// NewStreamHandler creates a new StreamHandler. status may be nil, in which
// case frames are sent unannotated.
func NewStreamHandler(camera capture.Camera, status *app.Status) *StreamHandler {
	return &StreamHandler{camera: camera, status: status}
}

// annotation builds the overlay for the current status.
func (h *StreamHandler) annotation() (capture.Annotation, bool) {
	if h.status == nil {
		return capture.Annotation{}, false
	}
	snap := h.status.Snapshot()
	a := capture.Annotation{
		Lines: []string{
			"pose: " + snap.Pose,
			"action: " + snap.Action,
			"seq: " + snap.Sequence,
		},
		Active: snap.Enabled,
	}
	if raw, ok := h.status.Skeleton(); ok {
		a.Skeleton = &raw
	}
	return a, true
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	interval := frameInterval(h.camera.FPS())
	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, err := h.camera.ReadFrame()
		if err != nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if a, ok := h.annotation(); ok {
			capture.Annotate(frame, a)
		}

		buf, err := gocv.IMEncode(".jpg", *frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		_, err = w.Write(buf.GetBytes())
		buf.Close()
		if err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		time.Sleep(interval)
	}
}
