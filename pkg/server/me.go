// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"time"

	apierrors "github.com/kokoro-labs/kokoro-auth/pkg/api/errors"
	"github.com/kokoro-labs/kokoro-auth/pkg/credential"
)

type meResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name,omitempty"`
	Picture         string     `json:"picture,omitempty"`
	Role            string     `json:"role"`
	SubscribedUntil *time.Time `json:"subscribed_until,omitempty"`
	// Via is "session" or "oauth".
	Via      string `json:"via"`
	ClientID string `json:"client_id,omitempty"`
}

// meHandler describes the authenticated principal.
func meHandler(w http.ResponseWriter, r *http.Request) {
	p := credential.FromContext(r.Context())
	u := p.User()
	resp := meResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Picture:         u.ProfilePicture,
		Role:            string(u.Role),
		SubscribedUntil: u.SubscribedUntil,
	}
	switch v := p.(type) {
	case credential.OAuthPrincipal:
		resp.Via = credential.KindOAuth.String()
		resp.ClientID = v.ClientID
	case credential.SessionPrincipal:
		resp.Via = credential.KindSession.String()
	}
	_ = apierrors.WriteJSON(w, http.StatusOK, resp)
}
