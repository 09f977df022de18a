package voice

import (
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "yomiage-bot/pkg/errors"
)

// Retry policy for the exclusive playback resource. Requests that stay busy
// past the budget are dropped, never queued; this is the only backpressure
// against bursty chat.
const (
	PlayAttempts      = 600
	PlayRetryInterval = 200 * time.Millisecond
)

// Player streams audio assets over one voice connection. Only one stream
// may be active at a time; starting another fails with ErrPlaybackBusy.
type Player struct {
	ffmpegBin string
	log       *zap.Logger

	mu      sync.Mutex
	playing bool
	stopCh  chan struct{}
}

// NewPlayer creates a player that transcodes assets with the given ffmpeg
// binary.
func NewPlayer(ffmpegBin string, log *zap.Logger) *Player {
	return &Player{ffmpegBin: ffmpegBin, log: log}
}

// IsPlaying reports whether a stream is active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stop aborts the active stream, if any. The stream's asset is still
// released by the streaming goroutine.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing && p.stopCh != nil {
		select {
		case <-p.stopCh:
		default:
			close(p.stopCh)
		}
	}
}

// TryPlay starts streaming the asset over conn, failing immediately with
// ErrPlaybackBusy while another stream is active. On a successful start the
// asset is released when the stream completes, stops or the connection
// drops.
func (p *Player) TryPlay(conn Conn, asset *Asset) error {
	if conn == nil {
		return apperrors.ErrNotConnected
	}

	p.mu.Lock()
	if p.playing {
		p.mu.Unlock()
		return apperrors.ErrPlaybackBusy
	}
	p.playing = true
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	cmd, opusOut, err := p.startTranscode(asset.Path)
	if err != nil {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
		return err
	}

	go p.stream(conn, asset, cmd, opusOut, stopCh)
	return nil
}

// Play is TryPlay under the bounded busy-retry policy: up to PlayAttempts
// attempts with PlayRetryInterval sleeps, stopping at the first non-busy
// outcome. On budget exhaustion the asset is released and the request is
// reported dropped. Terminal start failures also release the asset.
func (p *Player) Play(conn Conn, asset *Asset) error {
	return p.play(conn, asset, PlayAttempts, PlayRetryInterval)
}

func (p *Player) play(conn Conn, asset *Asset, attempts int, interval time.Duration) error {
	err := retryWhileBusy(attempts, interval, func() error {
		return p.TryPlay(conn, asset)
	})
	if err != nil {
		asset.Release()
	}
	return err
}

// retryWhileBusy runs start until it returns a non-busy result or the
// attempt budget runs out, in which case the request is dropped.
func retryWhileBusy(attempts int, interval time.Duration, start func() error) error {
	for attempt := 0; attempt < attempts; attempt++ {
		err := start()
		if !apperrors.IsBusy(err) {
			return err
		}
		time.Sleep(interval)
	}
	return apperrors.ErrPlaybackDropped
}

// startTranscode launches ffmpeg turning the asset into an OGG opus stream
// on stdout.
func (p *Player) startTranscode(path string) (*exec.Cmd, io.ReadCloser, error) {
	cmd := exec.Command(p.ffmpegBin,
		"-hide_banner",
		"-loglevel", "warning",
		"-i", path,
		"-vn",
		"-c:a", "libopus",
		"-b:a", "96k",
		"-ar", "48000",
		"-ac", "2",
		"-application", "audio",
		"-frame_duration", "20",
		"-f", "ogg",
		"pipe:1",
	)
	cmd.Stderr = io.Discard

	opusOut, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return cmd, opusOut, nil
}

// stream demuxes OGG pages from ffmpeg and pushes opus packets to the voice
// connection until EOF, stop or connection loss. It owns the asset from
// here on and releases it exactly once.
func (p *Player) stream(conn Conn, asset *Asset, cmd *exec.Cmd, opusOut io.ReadCloser, stopCh chan struct{}) {
	defer func() {
		opusOut.Close()
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
		cmd.Wait()
		conn.Speaking(false)
		asset.Release()

		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()

	if err := conn.Speaking(true); err != nil {
		p.log.Warn("failed to set speaking state", zap.Error(err))
	}

	if err := p.sendPages(conn, opusOut, stopCh); err != nil {
		p.log.Warn("playback ended with error", zap.Error(err))
	}
}

func (p *Player) sendPages(conn Conn, opusOut io.Reader, stopCh <-chan struct{}) error {
	oggHeader := make([]byte, 27)
	// A lacing value of 255 means the packet continues, possibly onto the
	// next page, so the partial packet survives across page reads.
	currentPacket := make([]byte, 0, 4000)

	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		// Read OGG page header
		if _, err := io.ReadFull(opusOut, oggHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		if string(oggHeader[0:4]) != "OggS" {
			return fmt.Errorf("invalid OGG header")
		}

		segCount := int(oggHeader[26])
		if segCount == 0 {
			continue
		}
		segTable := make([]byte, segCount)
		if _, err := io.ReadFull(opusOut, segTable); err != nil {
			return err
		}

		// Reassemble packets from lacing values and send them
		for i := 0; i < segCount; i++ {
			segLen := int(segTable[i])
			if segLen > 0 {
				segData := make([]byte, segLen)
				n, err := io.ReadFull(opusOut, segData)
				if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
					return err
				}
				currentPacket = append(currentPacket, segData[:n]...)
			}

			if segLen < 255 && len(currentPacket) > 0 {
				packet := make([]byte, len(currentPacket))
				copy(packet, currentPacket)
				select {
				case conn.OpusSend() <- packet:
				case <-stopCh:
					return nil
				}
				currentPacket = currentPacket[:0]
			}
		}
	}
}
