package scanner

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// listen polls the channel and appends each non-empty read to the buffer.
// It never opens or closes the channel.
func (s *Scanner) listen() {
	defer s.wg.Done()
	defer close(s.listenerDone)

	for s.Alive() {
		data, err := s.channel.ReadAvailable()
		if err != nil {
			s.metrics.readFailed(s.name)
			s.logger.Debug("Channel read failed", zap.Error(err))
		}

		// Bytes returned alongside an error were still received.
		if len(data) > 0 {
			chunk := string(data)
			if s.keep(chunk) {
				s.buffer.Append(chunk)
				s.metrics.chunkRead(s.name, len(data))
			}
		}

		if !s.sleep(s.cfg.ListenInterval) {
			return
		}
	}
}

// keep drops whitespace-only reads unless they may carry a lagging terminator
func (s *Scanner) keep(chunk string) bool {
	if s.cfg.Reassemble {
		return true
	}
	return strings.TrimSpace(chunk) != ""
}

// sleep waits for d or until Close; it reports false once the scanner is closing
func (s *Scanner) sleep(d time.Duration) bool {
	if d <= 0 {
		return s.Alive()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
