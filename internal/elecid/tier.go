package elecid

import "fmt"

// VerificationTier classifies how thoroughly an Elec-ID profile has been
// vetted. The set is closed: an unrecognised tier is a load-time error, not
// a silent fallback to a default badge.
type VerificationTier string

const (
	TierBasic    VerificationTier = "basic"
	TierVerified VerificationTier = "verified"
	TierPremium  VerificationTier = "premium"
)

// Tiers lists every valid tier in ascending order of vetting depth.
func Tiers() []VerificationTier {
	return []VerificationTier{TierBasic, TierVerified, TierPremium}
}

// ParseTier validates a stored or submitted tier value.
func ParseTier(s string) (VerificationTier, error) {
	switch VerificationTier(s) {
	case TierBasic, TierVerified, TierPremium:
		return VerificationTier(s), nil
	}
	return "", fmt.Errorf("unknown verification tier %q", s)
}

// DisplayName returns the label shown on profile badges.
func (t VerificationTier) DisplayName() string {
	switch t {
	case TierBasic:
		return "Basic"
	case TierVerified:
		return "Verified"
	case TierPremium:
		return "Premium"
	}
	return ""
}

// BadgeStyle returns the css token the frontend maps to badge styling.
func (t VerificationTier) BadgeStyle() string {
	switch t {
	case TierBasic:
		return "badge-neutral"
	case TierVerified:
		return "badge-success"
	case TierPremium:
		return "badge-gold"
	}
	return ""
}

// Valid reports whether t is a member of the closed set.
func (t VerificationTier) Valid() bool {
	_, err := ParseTier(string(t))
	return err == nil
}
