package scanner

import (
	"context"

	"go.uber.org/zap"
)

// supervise reopens the channel whenever it reports closed. Reopen failures
// are logged and counted but otherwise ignored; the next iteration retries.
func (s *Scanner) supervise() {
	defer s.wg.Done()

	failures := 0
	for {
		if !s.channel.IsOpen() {
			if failures == 0 {
				s.metrics.SetConnected(s.name, false)
				s.conn.LogConnection("lost", false, nil)
			}
			if s.reconnect(failures) {
				failures = 0
			} else {
				failures++
			}
		}

		if !s.sleep(s.cfg.HealthInterval) {
			return
		}
	}
}

// reconnect closes the stale handle, pauses, and opens the channel again.
// It reports whether the channel was reopened.
func (s *Scanner) reconnect(failures int) bool {
	if err := s.channel.Close(); err != nil {
		s.logger.Debug("Closing stale channel failed", zap.Error(err))
	}

	if !s.sleep(s.cfg.ReconnectPause) {
		return false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.OpenTimeout)
	err := s.channel.Open(ctx)
	cancel()

	if err != nil {
		s.metrics.reconnect(s.name, false)
		// Warn on the first failure of an outage, then keep quiet.
		if failures == 0 {
			s.conn.LogConnection("reconnect", false, err)
		} else {
			s.logger.Debug("Reconnect attempt failed",
				zap.Int("consecutive_failures", failures+1),
				zap.Error(err),
			)
		}
		return false
	}

	s.metrics.reconnect(s.name, true)
	s.metrics.SetConnected(s.name, true)
	s.conn.LogConnection("reconnect", true, nil)
	return true
}
