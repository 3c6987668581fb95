package web

import (
	"fmt"
	"io"
)

// mjpegBoundary separates parts of the multipart live feed
const mjpegBoundary = "frame"

// mjpegContentType is the response type for /video_feed
const mjpegContentType = "multipart/x-mixed-replace; boundary=" + mjpegBoundary

// writeMJPEGPart writes one JPEG as a multipart section
func writeMJPEGPart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
