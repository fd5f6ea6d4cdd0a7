// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJar_SetAndTake(t *testing.T) {
	t.Parallel()

	jar := Jar{Secure: true}
	rec := httptest.NewRecorder()
	jar.Set(rec, StateName("linear"), "state-value", 10*time.Minute)

	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	assert.Equal(t, "linear_oauth_state", set[0].Name)
	assert.Equal(t, 600, set[0].MaxAge)
	assert.True(t, set[0].HttpOnly)
	assert.True(t, set[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, set[0].SameSite)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(set[0])

	rec = httptest.NewRecorder()
	assert.Equal(t, "state-value", jar.Take(rec, req, "linear_oauth_state"))
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestGet_Missing(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Get(httptest.NewRequest(http.MethodGet, "/", nil), "nope"))
}
