package audiocapture

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// ffmpegCapture reads signed 16-bit little-endian mono PCM from an FFmpeg
// subprocess attached to the configured device.
type ffmpegCapture struct {
	role Role
	cfg  Config
	path string

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
}

// Available reports whether the capture binary can be resolved. Called
// before any device is touched so environment problems fail fast.
func Available(ffmpegPath string) bool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	_, err := exec.LookPath(ffmpegPath)
	return err == nil
}

func newFFmpegCapture(role Role, cfg Config) (*ffmpegCapture, error) {
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("capture binary not found: %w", err)
	}
	return &ffmpegCapture{role: role, cfg: cfg, path: resolved}, nil
}

func (f *ffmpegCapture) start(onSamples func([]float32)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	args := buildCaptureArgs(f.role, f.cfg)
	cmd := exec.Command(f.path, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture process: %w", err)
	}
	f.cmd = cmd
	f.stdout = stdout
	f.stderr = stderr

	// Block until the device produces its first samples so that denied or
	// silent devices fail here, at acquisition time.
	reader := bufio.NewReaderSize(stdout, f.cfg.ReadChunk*4)
	first := make([]byte, f.cfg.ReadChunk*2)
	if _, err := io.ReadFull(reader, first); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return classifyCaptureError(f.role, err, stderr.String())
	}

	go f.readLoop(reader, first, onSamples)
	return nil
}

func (f *ffmpegCapture) readLoop(reader *bufio.Reader, first []byte, onSamples func([]float32)) {
	onSamples(pcm16ToFloat32(first))

	buf := make([]byte, f.cfg.ReadChunk*2)
	for {
		n, err := io.ReadFull(reader, buf)
		if n > 0 {
			onSamples(pcm16ToFloat32(buf[:n&^1]))
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Error("capture read failed", "role", f.role, "error", err)
			}
			return
		}
	}
}

func (f *ffmpegCapture) stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cmd == nil {
		return nil
	}
	_ = f.stdout.Close()
	_ = f.cmd.Process.Kill()
	_ = f.cmd.Wait()
	f.cmd = nil
	return nil
}

// classifyCaptureError maps an early process exit to the acquisition error
// taxonomy using the process's diagnostic output.
func classifyCaptureError(role Role, err error, stderr string) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "operation not permitted"),
		strings.Contains(lower, "access denied"):
		return fmt.Errorf("%w: the system refused access to the %s device; grant audio capture permission and retry", ErrPermission, role)
	case role == RoleSystem:
		return fmt.Errorf("%w: the selected device produced no audio; pick a monitor/loopback device that carries the remote party's audio (%v)", ErrNoAudioTrack, err)
	default:
		return fmt.Errorf("%w: no samples from %s device (%v)", ErrPermission, role, err)
	}
}

// buildCaptureArgs assembles the FFmpeg argument list for one source.
// The microphone path enables the closest available stand-ins for echo
// cancellation, noise suppression and auto gain; the system path passes the
// remote audio through untouched.
func buildCaptureArgs(role Role, cfg Config) []string {
	inputFormat, device := platformInput(cfg.Device)

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", inputFormat,
		"-i", device,
		"-vn",
	}
	if role == RoleMicrophone {
		args = append(args, "-af", "highpass=f=80,afftdn=nf=-25,dynaudnorm=g=5")
	}
	args = append(args,
		"-f", "s16le",
		"-ac", "1",
		"-ar", fmt.Sprint(cfg.SampleRate),
		"pipe:1",
	)
	return args
}

// platformInput selects the capture demuxer and default device per platform.
func platformInput(device string) (format, dev string) {
	switch runtime.GOOS {
	case "darwin":
		if device == "" {
			device = ":default"
		}
		return "avfoundation", device
	case "windows":
		return "dshow", "audio=" + device
	default:
		if device == "" {
			device = "default"
		}
		return "pulse", device
	}
}

func pcm16ToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / float32(math.MaxInt16+1)
	}
	return samples
}
