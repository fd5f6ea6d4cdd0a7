// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package cookie writes the short-lived, httpOnly cookies that carry flow
// state between a redirect and its callback.
package cookie

import (
	"net/http"
	"time"
)

// Jar writes flow cookies with common attributes.
type Jar struct {
	// Secure is disabled only for local development over plain HTTP.
	Secure bool
	Domain string
	Path   string
}

func (j Jar) path() string {
	if j.Path == "" {
		return "/"
	}
	return j.Path
}

// Set writes name=value valid for ttl.
func (j Jar) Set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     j.path(),
		Domain:   j.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the named cookie.
func (j Jar) Clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     j.path(),
		Domain:   j.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get returns the value of the named cookie, or "".
func Get(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// Take returns the value of the named cookie and clears it, making the
// value single use.
func (j Jar) Take(w http.ResponseWriter, r *http.Request, name string) string {
	v := Get(r, name)
	j.Clear(w, name)
	return v
}

// StateName is the name of the CSRF state cookie of a provider flow.
func StateName(provider string) string {
	return provider + "_oauth_state"
}
