package domain

import "time"

// Credential is the vendor cloud access credential shared by every process
// of the bridge. ExpireAt is absolute unix seconds as reported by the vendor.
type Credential struct {
	AccessToken string
	ExpireAt    int64
	SubjectID   string
}

// Validate enforces the persistence invariant: a credential is never stored
// without both the token and its expiry.
func (c Credential) Validate() error {
	if c.AccessToken == "" || c.ExpireAt == 0 {
		return ErrInvalidInput
	}
	return nil
}

// ExpiredWithin reports whether the credential is expired once margin is
// subtracted from its lifetime. All clock-skew slack lives in the margin.
func (c Credential) ExpiredWithin(now time.Time, margin time.Duration) bool {
	return now.Unix() >= c.ExpireAt-int64(margin.Seconds())
}

// Remaining returns the credential lifetime left at now, which is also the
// TTL used when persisting it. Zero or negative means already expired.
func (c Credential) Remaining(now time.Time) time.Duration {
	return time.Duration(c.ExpireAt-now.Unix()) * time.Second
}
