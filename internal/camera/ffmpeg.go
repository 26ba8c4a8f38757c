package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-auth/internal/constants"
)

// FFmpegDevice captures MJPEG frames from a local camera through an ffmpeg
// subprocess writing to image2pipe.
type FFmpegDevice struct {
	Binary      string // defaults to "ffmpeg"
	InputFormat string // v4l2, avfoundation, dshow
	Device      string
	Width       int
	Height      int
	FrameRate   int
}

func (d *FFmpegDevice) binary() string {
	if d.Binary == "" {
		return "ffmpeg"
	}
	return d.Binary
}

func (d *FFmpegDevice) args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if d.InputFormat != "" {
		args = append(args, "-f", d.InputFormat)
	}
	rate := d.FrameRate
	if rate <= 0 {
		rate = constants.DefaultFrameRate
	}
	args = append(args, "-framerate", strconv.Itoa(rate))
	if d.Width > 0 && d.Height > 0 {
		args = append(args, "-video_size", fmt.Sprintf("%dx%d", d.Width, d.Height))
	}
	return append(args, "-i", d.Device, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
}

// RequestStream starts ffmpeg and waits for the first frame, which is the
// signal that the OS granted access to the device.
func (d *FFmpegDevice) RequestStream(ctx context.Context) (Stream, error) {
	if _, err := exec.LookPath(d.binary()); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrDeviceUnavailable, d.binary())
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := newSafeCommand(procCtx, d.binary(), d.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: starting ffmpeg: %v", ErrDeviceUnavailable, err)
	}

	s := &ffmpegStream{
		cmd:    cmd,
		cancel: cancel,
		frames: make(chan []byte, constants.FrameBufferSize),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run(stdout)

	select {
	case <-s.ready:
		return s, nil
	case <-s.done:
		return nil, s.err
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	}
}

// safeCommand keeps ffmpeg's stderr so a failed start can be diagnosed.
type safeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

func newSafeCommand(ctx context.Context, name string, args ...string) *safeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	return &safeCommand{Cmd: cmd, Stderr: stderr}
}

type ffmpegStream struct {
	cmd    *safeCommand
	cancel context.CancelFunc
	frames chan []byte

	readyOnce sync.Once
	ready     chan struct{}

	done chan struct{}
	err  error // set before done is closed

	stopOnce sync.Once
	stopped  bool
	mu       sync.Mutex
}

func (s *ffmpegStream) run(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 256*1024), constants.MaxFrameBytes)
	scanner.Split(SplitJpeg)

	for scanner.Scan() {
		frame := bytes.Clone(scanner.Bytes())
		s.push(frame)
		s.readyOnce.Do(func() { close(s.ready) })
	}

	scanErr := scanner.Err()
	waitErr := s.cmd.Wait()

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()

	switch {
	case stopped:
		s.err = ErrReleased
	case scanErr != nil:
		s.err = fmt.Errorf("%w: reading frames: %v", ErrDeviceUnavailable, scanErr)
	default:
		s.err = classifyFFmpeg(waitErr, s.cmd.Stderr.String())
	}
	close(s.done)
}

// push keeps only the most recent frames, dropping the oldest when the reader lags.
func (s *ffmpegStream) push(frame []byte) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// ReadFrame returns the most recent buffered frame and discards older ones,
// including those captured while the sensor was still warming up.
func (s *ffmpegStream) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return s.newest(frame), nil
	case <-s.done:
		select {
		case frame := <-s.frames:
			return s.newest(frame), nil
		default:
		}
		return nil, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *ffmpegStream) newest(frame []byte) []byte {
	for {
		select {
		case next := <-s.frames:
			frame = next
		default:
			return frame
		}
	}
}

func (s *ffmpegStream) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.cancel()
	})
	<-s.done
	return nil
}

func classifyFFmpeg(waitErr error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted") {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	}
	if msg == "" && waitErr == nil {
		return fmt.Errorf("%w: stream ended", ErrDeviceUnavailable)
	}
	if msg == "" {
		msg = waitErr.Error()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return fmt.Errorf("%w: ffmpeg exited with code %d: %s", ErrDeviceUnavailable, exitErr.ExitCode(), msg)
	}
	return fmt.Errorf("%w: %s", ErrDeviceUnavailable, msg)
}
