// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/env/mocks"
	"github.com/stacklok/toolhive-core/logging"
)

func TestTextFormatWithEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"unset defaults to json", "", false},
		{"text", "text", true},
		{"text mixed case", " Text ", true},
		{"json", "json", false},
		{"unknown value", "yaml", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(LogFormatEnv).Return(tt.envValue)

			assert.Equal(t, tt.expected, textFormatWithEnv(mockEnv))
		})
	}
}

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Infow", func() { Infow("info kv", "client_id", "abc") }, "client_id"},
		{"Infof", func() { Infof("info %s", "formatted") }, "info formatted"},
		{"Warnw", func() { Warnw("warn kv", "key", "val") }, "warn kv"},
		{"Errorw", func() { Errorw("error kv", "key", "val") }, "error kv"},
		{"Errorf", func() { Errorf("error %s", "formatted") }, "error formatted"},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates singleton
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			setSingletonForTest(t, logging.New(
				logging.WithOutput(&buf),
				logging.WithLevel(slog.LevelDebug),
			))

			tc.logFn()

			assert.Contains(t, buf.String(), tc.contains)
		})
	}
}

func TestGetAndSet(t *testing.T) { //nolint:paralleltest // mutates singleton
	prev := Get()
	t.Cleanup(func() { Set(prev) })

	var buf bytes.Buffer
	Set(logging.New(logging.WithOutput(&buf)))

	got := Get()
	require.NotNil(t, got)
	got.Info("get test")
	assert.Contains(t, buf.String(), "get test")
}

func TestInitializeWithEnv(t *testing.T) { //nolint:paralleltest // mutates singleton
	for _, format := range []string{"", "text", "json"} { //nolint:paralleltest // mutates singleton
		t.Run("format="+format, func(t *testing.T) {
			prev := singleton.Load()
			t.Cleanup(func() { singleton.Store(prev) })

			ctrl := gomock.NewController(t)
			mockEnv := mocks.NewMockReader(ctrl)
			mockEnv.EXPECT().Getenv(LogFormatEnv).Return(format)

			InitializeWithEnv(mockEnv)

			require.NotNil(t, singleton.Load())
			singleton.Load().Info("test after initialize")
		})
	}
}
