// Package kick is the adapter for the Kick platform: OAuth flows, the
// signing-key cache, webhook signature verification, and a minimal API
// client carrying a user access token.
package kick
