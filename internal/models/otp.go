package models

import "time"

// OTPSession is one issued, not yet consumed, one-time password.
type OTPSession struct {
	UserID    string    `json:"user_id" dynamodbav:"UserID"`
	Office    string    `json:"office" dynamodbav:"Office"`
	CodeHash  string    `json:"code_hash" dynamodbav:"CodeHash"`
	Mobile    string    `json:"mobile" dynamodbav:"Mobile"`
	Name      string    `json:"name" dynamodbav:"Name"`
	Post      string    `json:"post" dynamodbav:"Post"`
	Attempts  int       `json:"attempts" dynamodbav:"Attempts"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"CreatedAt"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"ExpiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *OTPSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RetainUntil is when a store may drop the session. An expired session is
// kept for one more lifetime so a late verify still reports the expiry
// instead of a missing session.
func (s *OTPSession) RetainUntil() time.Time {
	lifetime := s.ExpiresAt.Sub(s.CreatedAt)
	if lifetime < time.Minute {
		lifetime = time.Minute
	}
	return s.ExpiresAt.Add(lifetime)
}

// SessionKey identifies a session. Sessions are scoped per office so two
// offices sharing a user id never collide.
type SessionKey struct {
	Office string
	UserID string
}

func (s *OTPSession) Key() SessionKey {
	return SessionKey{Office: s.Office, UserID: s.UserID}
}

// AccessToken is returned after a successful OTP verification.
type AccessToken struct {
	Token     string `json:"access_token"`
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}
