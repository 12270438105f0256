package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	applog "markin/internal/log"
)

func TestCloseFetchLog(t *testing.T) {
	t.Run("logs cleanup error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := applog.New(applog.Config{Output: &buf})

		closeFetchLog(logger, func() error { return errors.New("database is locked") })

		assert.Contains(t, buf.String(), "Fetch log cleanup failed")
		assert.Contains(t, buf.String(), "database is locked")
	})

	t.Run("quiet on success", func(t *testing.T) {
		var buf bytes.Buffer
		logger := applog.New(applog.Config{Output: &buf})
		calls := 0

		closeFetchLog(logger, func() error { calls++; return nil })
		closeFetchLog(logger, nil)

		assert.Equal(t, 1, calls)
		assert.Empty(t, buf.String())
	})
}
