package scanner

import (
	"go.uber.org/zap"
)

// drain empties the buffer every DrainInterval and delivers the tokens.
// After Close it waits for the listener to stop and drains once more, so
// every chunk appended before Close is delivered.
func (s *Scanner) drain() {
	defer s.wg.Done()

	for s.sleep(s.cfg.DrainInterval) {
		s.process(s.buffer.Drain())
	}

	<-s.listenerDone
	s.process(s.buffer.Drain())

	if rest, ok := s.tokenizer.Flush(); ok {
		s.emit(rest)
	}
}

func (s *Scanner) process(chunks []string) {
	if len(chunks) == 0 {
		return
	}

	s.tokenizer.Tokenize(chunks, s.emit)

	if n := s.tokenizer.TakeOverflows(); n > 0 {
		s.metrics.partialOverflow(s.name, n)
		s.logger.Warn("Discarded unterminated input exceeding the partial size limit",
			zap.Int("discarded", n),
			zap.Int("max_partial_size", s.cfg.MaxPartialSize),
		)
	}
}
