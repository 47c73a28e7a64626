package chat

import "time"

// maybeWakeup puts the wakeup command in front of an unwritten head command
// when the link has been idle too long. Callers hold mu.
func (c *core) maybeWakeup() {
	if c.wakeup == nil || c.queue[0].wakeup || c.wakeupTimer != nil {
		return
	}
	if !c.lastActivity.IsZero() && time.Since(c.lastActivity) < c.wakeup.timeout {
		return
	}

	c.logger.Debug("sending wakeup command", "command", c.wakeup.text)
	c.queue = append([]*command{newWakeupCommand(c.wakeup.text)}, c.queue...)
	c.wakeupTimer = time.NewTimer(c.wakeup.interval)
}

// wakeupExpired resends the wakeup command when the modem has not answered
// it within the interval.
func (c *core) wakeupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wakeupTimer = nil
	if c.closed || c.wakeup == nil || len(c.queue) == 0 || !c.queue[0].wakeup {
		return
	}

	c.logger.Debug("no answer to wakeup command, resending")
	c.written = 0
	c.awaitPrompt = false
	c.wakeupTimer = time.NewTimer(c.wakeup.interval)
	c.kickWriter()
}

// stopWakeupTimer is called when the wakeup command got its final result.
// Callers hold mu.
func (c *core) stopWakeupTimer() {
	if c.wakeupTimer == nil {
		return
	}
	c.wakeupTimer.Stop()
	c.wakeupTimer = nil
}
