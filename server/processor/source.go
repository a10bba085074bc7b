package processor

import (
	"errors"
	"fmt"
	"image"
	"io"

	vidio "github.com/AlexEidt/Vidio"
)

var ErrOpenVideo = errors.New("failed to open video")

// FrameSource yields decoded frames in order. Read returns io.EOF once the
// stream is exhausted. Every returned image is owned by the caller.
type FrameSource interface {
	Read() (image.Image, error)
	Frames() int
	FPS() float64
	Close() error
}

type Opener func(path string) (FrameSource, error)

// VidioSource decodes a video file through ffmpeg.
type VidioSource struct {
	video  *vidio.Video
	width  int
	height int
	closed bool
}

func OpenVidio(path string) (FrameSource, error) {
	video, err := vidio.NewVideo(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenVideo, err)
	}
	return &VidioSource{video: video, width: video.Width(), height: video.Height()}, nil
}

func (s *VidioSource) Read() (image.Image, error) {
	if s.closed || !s.video.Read() {
		return nil, io.EOF
	}

	// the frame buffer is reused by the next Read
	frame := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	copy(frame.Pix, s.video.FrameBuffer())
	return frame, nil
}

// Frames is the container's frame count, which may be 0 or inaccurate.
func (s *VidioSource) Frames() int {
	return s.video.Frames()
}

func (s *VidioSource) FPS() float64 {
	return s.video.FPS()
}

func (s *VidioSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.video.Close()
	return nil
}
