package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "authorization"

// VerificationText is the known plaintext sealed into every user's
// verification marker.
const VerificationText = "DECRYPT ME"
