package music

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// TransportOptions is pass-through decoder configuration. FilterChain is
// opaque to this package; it goes to ffmpeg verbatim.
type TransportOptions struct {
	FilterChain  string
	Reconnect    bool
	IgnoreErrors bool
}

// Transport streams one local media file into a voice connection. A transport
// is single-use: Start may be called once.
type Transport interface {
	Start(filePath string, onComplete func(error)) error
	Pause()
	Resume()
	Stop()
	IsPlaying() bool
	IsPaused() bool
}

// TransportFactory builds a transport bound to a voice connection.
type TransportFactory func(vc *discordgo.VoiceConnection, opts TransportOptions) Transport

// NewFFmpegTransport decodes through an ffmpeg child process producing
// ogg/opus on stdout and forwards opus packets to the voice connection at a
// 20ms frame cadence.
func NewFFmpegTransport(vc *discordgo.VoiceConnection, opts TransportOptions) Transport {
	return &ffmpegTransport{
		vc:     vc,
		opts:   opts,
		stopCh: make(chan struct{}),
	}
}

type ffmpegTransport struct {
	vc   *discordgo.VoiceConnection
	opts TransportOptions

	mu       sync.Mutex
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	playing  bool
	paused   bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

func (t *ffmpegTransport) Start(filePath string, onComplete func(error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.playing {
		return fmt.Errorf("%w: transport already started", ErrTransportStart)
	}
	if t.vc == nil {
		return fmt.Errorf("%w: no voice connection", ErrTransportStart)
	}

	ctx, cancel := context.WithCancel(context.Background())

	args := []string{"-vn"}
	if t.opts.Reconnect {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_at_eof", "1",
			"-reconnect_delay_max", "2",
		)
	}
	if t.opts.IgnoreErrors {
		args = append(args, "-err_detect", "ignore_err")
	}
	args = append(args, "-i", filePath)
	if t.opts.FilterChain != "" {
		args = append(args, "-af", t.opts.FilterChain)
	}
	args = append(args,
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", "96k",
		"-vbr", "on",
		"-frame_duration", "20",
		"-application", "audio",
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrTransportStart, err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrTransportStart, err)
	}

	t.cmd = cmd
	t.cancel = cancel
	t.playing = true

	go func() {
		streamErr := t.stream(stdout)

		t.mu.Lock()
		t.playing = false
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		_ = cmd.Wait()
		t.cmd = nil
		t.cancel = nil
		t.mu.Unlock()
		cancel()

		if onComplete != nil {
			onComplete(streamErr)
		}
	}()

	return nil
}

func (t *ffmpegTransport) stream(r io.ReadCloser) error {
	defer r.Close()

	safeSpeaking(t.vc, true)
	defer safeSpeaking(t.vc, false)

	reader := newOggOpusReader(r)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return nil
		default:
		}

		if t.waitWhilePaused() {
			return nil
		}

		page, err := reader.nextPage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decoder stream error: %w", err)
		}
		if page.isHeader {
			continue
		}

		for _, packet := range page.packets {
			if len(packet) == 0 {
				continue
			}

			select {
			case <-t.stopCh:
				return nil
			default:
			}
			if t.waitWhilePaused() {
				return nil
			}

			<-ticker.C

			select {
			case t.vc.OpusSend <- packet:
			case <-t.stopCh:
				return nil
			case <-time.After(time.Second):
				log.Printf("timeout sending opus frame, dropping")
			}
		}
	}
}

// waitWhilePaused blocks while paused; returns true if stopped meanwhile.
func (t *ffmpegTransport) waitWhilePaused() bool {
	for {
		t.mu.Lock()
		paused := t.paused
		t.mu.Unlock()
		if !paused {
			return false
		}

		safeSpeaking(t.vc, false)
		select {
		case <-t.stopCh:
			return true
		case <-time.After(100 * time.Millisecond):
		}

		t.mu.Lock()
		paused = t.paused
		t.mu.Unlock()
		if !paused {
			safeSpeaking(t.vc, true)
			return false
		}
	}
}

func (t *ffmpegTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		t.paused = true
	}
}

func (t *ffmpegTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = false
}

func (t *ffmpegTransport) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *ffmpegTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing && !t.paused
}

func (t *ffmpegTransport) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing && t.paused
}

func safeSpeaking(vc *discordgo.VoiceConnection, speaking bool) {
	if vc == nil || !vc.Ready {
		return
	}
	_ = vc.Speaking(speaking)
}

// oggOpusReader extracts opus packets from the ogg container ffmpeg emits.
type oggOpusReader struct {
	reader *bufio.Reader
}

func newOggOpusReader(r io.Reader) *oggOpusReader {
	return &oggOpusReader{reader: bufio.NewReaderSize(r, 65536)}
}

type oggPage struct {
	isHeader bool
	packets  [][]byte
}

func (o *oggOpusReader) nextPage() (*oggPage, error) {
	if err := o.syncToPage(); err != nil {
		return nil, err
	}

	headerRest := make([]byte, 23)
	if _, err := io.ReadFull(o.reader, headerRest); err != nil {
		return nil, err
	}

	headerType := headerRest[1]
	pageSegments := headerRest[22]

	segmentTable := make([]byte, pageSegments)
	if _, err := io.ReadFull(o.reader, segmentTable); err != nil {
		return nil, err
	}

	pageSize := 0
	for _, seg := range segmentTable {
		pageSize += int(seg)
	}

	pageData := make([]byte, pageSize)
	if _, err := io.ReadFull(o.reader, pageData); err != nil {
		return nil, err
	}

	isHeader := headerType&0x02 != 0
	if len(pageData) >= 8 {
		magic := string(pageData[:8])
		if magic == "OpusHead" || magic == "OpusTags" {
			isHeader = true
		}
	}

	return &oggPage{
		isHeader: isHeader,
		packets:  splitPackets(segmentTable, pageData),
	}, nil
}

func (o *oggOpusReader) syncToPage() error {
	for {
		b, err := o.reader.ReadByte()
		if err != nil {
			return err
		}
		if b != 'O' {
			continue
		}

		peek, err := o.reader.Peek(3)
		if err != nil {
			return err
		}
		if string(peek) == "ggS" {
			_, _ = o.reader.Discard(3)
			return nil
		}
	}
}

func splitPackets(segmentTable []byte, pageData []byte) [][]byte {
	var packets [][]byte
	var current []byte
	offset := 0

	for _, segSize := range segmentTable {
		size := int(segSize)
		if offset+size > len(pageData) {
			break
		}

		current = append(current, pageData[offset:offset+size]...)
		offset += size

		if segSize < 255 && len(current) > 0 {
			packet := make([]byte, len(current))
			copy(packet, current)
			packets = append(packets, packet)
			current = current[:0]
		}
	}

	if len(current) > 0 {
		packet := make([]byte, len(current))
		copy(packet, current)
		packets = append(packets, packet)
	}

	return packets
}
