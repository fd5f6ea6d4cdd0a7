// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package signedtoken

// AccessTokenSchema matches OAuth access tokens minted by the token endpoint.
var AccessTokenSchema = MustSchema("access_token", `{
  "type": "object",
  "required": ["sub", "aud"],
  "properties": {
    "sub": {"type": "string", "minLength": 1},
    "aud": {"type": "string", "minLength": 1}
  }
}`)

// AuthorizeRequestSchema matches the snapshot of a pending /authorize request.
var AuthorizeRequestSchema = MustSchema("authorize_request", `{
  "type": "object",
  "required": ["response_type", "client_id", "redirect_uri", "scope"],
  "properties": {
    "response_type": {"enum": ["code"]},
    "client_id": {"type": "string", "minLength": 1},
    "redirect_uri": {"type": "string", "minLength": 1},
    "scope": {"type": "array", "items": {"type": "string"}},
    "state": {"type": "string"},
    "code_challenge": {"type": "string"},
    "code_challenge_method": {"enum": ["", "S256", "plain"]}
  }
}`)

// LoginStateSchema matches the state of a pending federated login.
var LoginStateSchema = MustSchema("login_state", `{
  "type": "object",
  "required": ["provider", "state", "nonce"],
  "properties": {
    "provider": {"type": "string", "minLength": 1},
    "state": {"type": "string", "minLength": 1},
    "nonce": {"type": "string", "minLength": 1},
    "next": {"type": "string"}
  }
}`)
