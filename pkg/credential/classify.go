// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package credential

// Kind is the family a bearer credential belongs to.
type Kind int

const (
	// KindSession is an opaque first-party session token.
	KindSession Kind = iota
	// KindOAuth is a signed access token issued to an OAuth client.
	KindOAuth
)

func (k Kind) String() string {
	switch k {
	case KindOAuth:
		return "oauth"
	default:
		return "session"
	}
}

// Classifier decides which validator a raw credential is sent to.
type Classifier interface {
	Classify(token string) Kind
}

// DefaultLengthThreshold is the length at which LengthClassifier treats a
// token as an OAuth access token. Session tokens are 32 characters.
const DefaultLengthThreshold = 40

// LengthClassifier classifies by length: tokens of at least Threshold
// characters are OAuth access tokens, shorter ones are session tokens.
// This is a heuristic, not a format check.
type LengthClassifier struct {
	Threshold int
}

// Classify implements Classifier.
func (c LengthClassifier) Classify(token string) Kind {
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultLengthThreshold
	}
	if len(token) >= threshold {
		return KindOAuth
	}
	return KindSession
}
